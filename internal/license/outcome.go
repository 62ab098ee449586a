package license

import (
	"licensebeat/pkg/contracts/domain"
)

// Outcome is the action activation takes for a validation result
type Outcome int

const (
	// OutcomeValid means the fingerprint already holds a seat
	OutcomeValid Outcome = iota
	// OutcomeClaimSeat means the license is usable but this fingerprint
	// has no seat yet
	OutcomeClaimSeat
	// OutcomeReject means the license cannot be used
	OutcomeReject
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeClaimSeat:
		return "claim_seat"
	case OutcomeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classify maps a validation result onto an Outcome
func Classify(res *domain.ValidationResult) Outcome {
	if res.Valid {
		return OutcomeValid
	}
	return OutcomeForCode(res.Code)
}

// OutcomeForCode maps the code of a failed validation onto an Outcome.
// Every known code is listed; a new code must be placed explicitly.
func OutcomeForCode(code domain.ValidationCode) Outcome {
	switch code {
	case domain.CodeFingerprintScopeMismatch,
		domain.CodeNoMachines,
		domain.CodeNoMachine:
		return OutcomeClaimSeat

	case domain.CodeValid,
		domain.CodeNotFound,
		domain.CodeSuspended,
		domain.CodeExpired,
		domain.CodeOverdue,
		domain.CodeTooManyMachines,
		domain.CodeTooManyCores,
		domain.CodeTooManyProcesses,
		domain.CodeFingerprintScopeRequired,
		domain.CodeFingerprintScopeEmpty,
		domain.CodeHeartbeatNotStarted,
		domain.CodeHeartbeatDead,
		domain.CodeProductScopeMismatch,
		domain.CodePolicyScopeMismatch,
		domain.CodeMachineScopeMismatch,
		domain.CodeBanned,
		domain.CodeUnknown:
		return OutcomeReject
	}
	return OutcomeReject
}
