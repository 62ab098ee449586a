// Package domain contains the licensing resources exchanged between the
// gateway client and the activation/heartbeat components.
package domain

import (
	"time"
)

// ValidationCode is the machine-readable outcome of a license validation
type ValidationCode string

// Codes reported by the licensing service in validation meta
const (
	CodeValid                    ValidationCode = "VALID"
	CodeNotFound                 ValidationCode = "NOT_FOUND"
	CodeSuspended                ValidationCode = "SUSPENDED"
	CodeExpired                  ValidationCode = "EXPIRED"
	CodeOverdue                  ValidationCode = "OVERDUE"
	CodeNoMachine                ValidationCode = "NO_MACHINE"
	CodeNoMachines               ValidationCode = "NO_MACHINES"
	CodeTooManyMachines          ValidationCode = "TOO_MANY_MACHINES"
	CodeTooManyCores             ValidationCode = "TOO_MANY_CORES"
	CodeTooManyProcesses         ValidationCode = "TOO_MANY_PROCESSES"
	CodeFingerprintScopeRequired ValidationCode = "FINGERPRINT_SCOPE_REQUIRED"
	CodeFingerprintScopeMismatch ValidationCode = "FINGERPRINT_SCOPE_MISMATCH"
	CodeFingerprintScopeEmpty    ValidationCode = "FINGERPRINT_SCOPE_EMPTY"
	CodeHeartbeatNotStarted      ValidationCode = "HEARTBEAT_NOT_STARTED"
	CodeHeartbeatDead            ValidationCode = "HEARTBEAT_DEAD"
	CodeProductScopeMismatch     ValidationCode = "PRODUCT_SCOPE_MISMATCH"
	CodePolicyScopeMismatch      ValidationCode = "POLICY_SCOPE_MISMATCH"
	CodeMachineScopeMismatch     ValidationCode = "MACHINE_SCOPE_MISMATCH"
	CodeBanned                   ValidationCode = "BANNED"
	// CodeUnknown stands for any code this client does not recognise
	CodeUnknown ValidationCode = "UNKNOWN"
)

var knownCodes = map[ValidationCode]struct{}{
	CodeValid: {}, CodeNotFound: {}, CodeSuspended: {}, CodeExpired: {}, CodeOverdue: {},
	CodeNoMachine: {}, CodeNoMachines: {}, CodeTooManyMachines: {}, CodeTooManyCores: {},
	CodeTooManyProcesses: {}, CodeFingerprintScopeRequired: {}, CodeFingerprintScopeMismatch: {},
	CodeFingerprintScopeEmpty: {}, CodeHeartbeatNotStarted: {}, CodeHeartbeatDead: {},
	CodeProductScopeMismatch: {}, CodePolicyScopeMismatch: {}, CodeMachineScopeMismatch: {},
	CodeBanned: {},
}

// ParseValidationCode maps a wire code to a ValidationCode. Unrecognised
// codes become CodeUnknown.
func ParseValidationCode(raw string) ValidationCode {
	code := ValidationCode(raw)
	if _, ok := knownCodes[code]; ok {
		return code
	}
	return CodeUnknown
}

// ValidationResult is the outcome of a fingerprint-scoped key validation.
// Code is only meaningful when Valid is false.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Code      ValidationCode `json:"code"`
	RawCode   string         `json:"raw_code,omitempty"`
	Detail    string         `json:"detail"`
	LicenseID string         `json:"license_id"`
}

// ResourceType names a licensing API resource collection
type ResourceType string

const (
	ResourceLicenses  ResourceType = "licenses"
	ResourceMachines  ResourceType = "machines"
	ResourceProcesses ResourceType = "processes"
)

// Machine is a seat binding a fingerprint to a license
type Machine struct {
	ID          string `json:"id" validate:"required"`
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name,omitempty"`
	LicenseID   string `json:"license_id,omitempty"`
}

// ProcessStatus is the liveness state the service tracks for a process
type ProcessStatus string

const (
	ProcessAlive       ProcessStatus = "ALIVE"
	ProcessDead        ProcessStatus = "DEAD"
	ProcessResurrected ProcessStatus = "RESURRECTED"
	ProcessNotStarted  ProcessStatus = "NOT_STARTED"
)

// Process is this running instance registered as a consumer of a machine seat
type Process struct {
	ID            string        `json:"id" validate:"required"`
	PID           string        `json:"pid"`
	Interval      int           `json:"interval" validate:"gte=0"`
	Status        ProcessStatus `json:"status,omitempty"`
	MachineID     string        `json:"machine_id,omitempty"`
	LastHeartbeat *time.Time    `json:"last_heartbeat,omitempty"`
	NextHeartbeat *time.Time    `json:"next_heartbeat,omitempty"`
}

// IntervalDuration returns the server-assigned heartbeat interval
func (p *Process) IntervalDuration() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// Resource is the result of a generic lookup
type Resource struct {
	Type       ResourceType           `json:"type"`
	ID         string                 `json:"id" validate:"required"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}
