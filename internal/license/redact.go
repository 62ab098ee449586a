package license

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"

	"licensebeat/internal/errors"
)

// MaskKey hides all but the first and last four characters of key
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// HashKey returns a short sha256 prefix of key for log correlation
func HashKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// classifyError names the error kind for metric labels
func classifyError(err error) string {
	var (
		invalid  *errors.LicenseInvalid
		rejected *errors.ActivationRejected
		gateway  *errors.GatewayError
	)
	switch {
	case err == nil:
		return ""
	case stderrors.As(err, &invalid):
		return "license_invalid"
	case stderrors.As(err, &rejected):
		return "activation_rejected"
	case stderrors.As(err, &gateway):
		if gateway.StatusCode == 0 {
			return "network_error"
		}
		return "gateway_error"
	default:
		return "unknown_error"
	}
}
