// Package licensetest provides an in-memory licensing gateway for tests.
package licensetest

import (
	"context"
	"fmt"
	"sync"

	"licensebeat/internal/errors"
	"licensebeat/pkg/contracts/domain"
)

// Call records one request made to the fake
type Call struct {
	Op   string
	Args []string
}

// Gateway is a scriptable fake of the licensing service. Unset responses
// fall back to sensible successes.
type Gateway struct {
	mu    sync.Mutex
	calls []Call

	Validation    *domain.ValidationResult
	ValidateErr   error
	Machine       *domain.Machine
	CreateErr     error
	RetrieveErr   error
	Process       *domain.Process
	ProcessErr    error
	DeleteErr     error
	PingErr       error
	DeleteMachErr error

	// OnPing runs inside PingProcess before it returns
	OnPing func(id string)
	// OnDelete runs inside DeleteProcess before it returns
	OnDelete func(id string)
}

func (g *Gateway) record(op string, args ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: op, Args: args})
}

// Calls returns a copy of the recorded calls in order
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// Ops returns the recorded operation names in order
func (g *Gateway) Ops() []string {
	calls := g.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called
func (g *Gateway) Count(op string) int {
	n := 0
	for _, c := range g.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// SetPingErr changes the ping error while the fake is in use
func (g *Gateway) SetPingErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PingErr = err
}

func (g *Gateway) ValidateKey(_ context.Context, fingerprint, key string) (*domain.ValidationResult, error) {
	g.record("validate-key", fingerprint, key)
	if g.ValidateErr != nil {
		return nil, g.ValidateErr
	}
	if g.Validation != nil {
		res := *g.Validation
		return &res, nil
	}
	return &domain.ValidationResult{Valid: true, Code: domain.CodeValid, LicenseID: "L1"}, nil
}

func (g *Gateway) CreateMachine(_ context.Context, fingerprint, licenseID, key string) (*domain.Machine, error) {
	g.record("create-machine", fingerprint, licenseID, key)
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	return g.machine(fingerprint, licenseID), nil
}

func (g *Gateway) RetrieveMachine(_ context.Context, id, key string) (*domain.Machine, error) {
	g.record("retrieve-machine", id, key)
	if g.RetrieveErr != nil {
		return nil, g.RetrieveErr
	}
	return g.machine(id, "L1"), nil
}

func (g *Gateway) Retrieve(_ context.Context, typ domain.ResourceType, id, key string) (*domain.Resource, error) {
	g.record("retrieve", string(typ), id, key)
	if g.RetrieveErr != nil {
		return nil, g.RetrieveErr
	}
	return &domain.Resource{Type: typ, ID: id}, nil
}

func (g *Gateway) CreateProcess(_ context.Context, pid, machineID, key string) (*domain.Process, error) {
	g.record("create-process", pid, machineID, key)
	if g.ProcessErr != nil {
		return nil, g.ProcessErr
	}
	if g.Process != nil {
		p := *g.Process
		p.MachineID = machineID
		return &p, nil
	}
	return &domain.Process{ID: "P1", PID: pid, Interval: 60, MachineID: machineID, Status: domain.ProcessAlive}, nil
}

func (g *Gateway) DeleteProcess(_ context.Context, id, key string) error {
	g.record("delete-process", id, key)
	if g.OnDelete != nil {
		g.OnDelete(id)
	}
	return g.DeleteErr
}

func (g *Gateway) DeleteMachine(_ context.Context, id, key string) error {
	g.record("delete-machine", id, key)
	return g.DeleteMachErr
}

func (g *Gateway) PingProcess(_ context.Context, id, key string) (*domain.Process, error) {
	g.record("ping-process", id, key)
	if g.OnPing != nil {
		g.OnPing(id)
	}
	g.mu.Lock()
	err := g.PingErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.Process{ID: id, Status: domain.ProcessAlive}, nil
}

func (g *Gateway) machine(fingerprint, licenseID string) *domain.Machine {
	if g.Machine != nil {
		m := *g.Machine
		return &m
	}
	return &domain.Machine{ID: "M1", Fingerprint: fingerprint, LicenseID: licenseID}
}

// EnvelopeError builds the gateway error the service returns for code
func EnvelopeError(op string, status int, code, detail string) *errors.GatewayError {
	return &errors.GatewayError{
		Operation:  op,
		StatusCode: status,
		Errors: []errors.APIErrorObject{{
			Title:  fmt.Sprintf("%d", status),
			Detail: detail,
			Code:   code,
		}},
	}
}
