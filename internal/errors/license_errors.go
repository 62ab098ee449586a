package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// License-specific sentinel errors
var (
	ErrMissingAccount   = errors.New("licensing account id is required")
	ErrEmptyLicenseKey  = errors.New("license key cannot be empty")
	ErrEmptyFingerprint = errors.New("machine fingerprint cannot be empty")
	ErrAlreadyStarted   = errors.New("lifecycle already started")
)

// APIErrorObject is one entry of a JSON:API "errors" collection.
type APIErrorObject struct {
	Title  string          `json:"title,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Code   string          `json:"code,omitempty"`
	Source *APIErrorSource `json:"source,omitempty"`
}

// APIErrorSource points at the request member that caused an error.
type APIErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// GatewayError is returned for any failed exchange with the licensing
// service: a transport failure, an error envelope, or an unexpected status.
type GatewayError struct {
	Operation  string
	StatusCode int
	Errors     []APIErrorObject
	Cause      error
}

// Error renders the error envelope the way the service returned it.
func (e *GatewayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
	}
	if len(e.Errors) > 0 {
		data, err := json.MarshalIndent(e.Errors, "", "  ")
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
}

// Unwrap exposes the transport failure, if any.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether any entry of the envelope carries code.
func (e *GatewayError) HasCode(code string) bool {
	for _, obj := range e.Errors {
		if obj.Code == code {
			return true
		}
	}
	return false
}

// LicenseInvalid is returned when validation fails with a code that does
// not permit claiming a seat. It is terminal for the run.
type LicenseInvalid struct {
	Detail string
	Code   string
}

func (e *LicenseInvalid) Error() string {
	return fmt.Sprintf("license %s (%s)", e.Detail, e.Code)
}

// ActivationRejected wraps the failure of the seat-claim request.
type ActivationRejected struct {
	Fingerprint string
	LicenseID   string
	Cause       error
}

func (e *ActivationRejected) Error() string {
	return fmt.Sprintf("machine activation rejected for license %s: %v", e.LicenseID, e.Cause)
}

func (e *ActivationRejected) Unwrap() error {
	return e.Cause
}

// Describe returns the verbose form of err used in debug output: every
// error in the chain with its concrete type, plus gateway status codes.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	depth := 0
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), cur, cur.Error())
		if gwErr, ok := cur.(*GatewayError); ok {
			fmt.Fprintf(&b, "%s  operation=%s status=%d errors=%d\n",
				strings.Repeat("  ", depth), gwErr.Operation, gwErr.StatusCode, len(gwErr.Errors))
		}
		depth++
	}
	return strings.TrimRight(b.String(), "\n")
}
