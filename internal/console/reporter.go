package console

import (
	"licensebeat/internal/heartbeat"
	"licensebeat/internal/lifecycle"
)

// Transition prints the progress line for entering state to
func (c *Console) Transition(to lifecycle.State, snap lifecycle.Snapshot) {
	switch to {
	case lifecycle.StateRegistering:
		c.Success("Machine successfully activated (machine %s)", snap.MachineID)
	case lifecycle.StateMonitoring:
		c.Success("Process successfully spawned (process %s)", snap.ProcessID)
		c.Notice("Heartbeat monitor started... (process %s)", snap.ProcessID)
	case lifecycle.StateShuttingDown:
		c.Notice("Heartbeat monitor stopping... (process %s)", snap.ProcessID)
	case lifecycle.StateTerminated:
		c.Notice("Process successfully killed (process %s)", snap.ProcessID)
		c.Notice("Exiting...")
	}
}

// Beat prints the outcome of one heartbeat ping
func (c *Console) Beat(b heartbeat.Beat) {
	if b.Err != nil {
		c.Warn("Heartbeat ping failed (process %s): %v", b.ProcessID, b.Err)
		return
	}
	c.Success("Heartbeat ping successfully sent (process %s)", b.ProcessID)
}
