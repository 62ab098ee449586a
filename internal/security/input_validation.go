package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLicenseKeyLength bounds accepted keys; signed keys run to a few
// hundred characters.
const MaxLicenseKeyLength = 1024

// ErrMalformedLicenseKey is returned for keys that cannot be sent as typed
var ErrMalformedLicenseKey = errors.New("malformed license key")

// NormalizeLicenseKey trims surrounding whitespace and rejects keys that
// could not have been issued: invalid UTF-8, too long, or containing
// whitespace or control characters. Case is preserved.
func NormalizeLicenseKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nil
	}

	if !utf8.ValidString(key) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrMalformedLicenseKey)
	}
	if len(key) > MaxLicenseKeyLength {
		return "", fmt.Errorf("%w: exceeds maximum length of %d characters", ErrMalformedLicenseKey, MaxLicenseKeyLength)
	}

	for i, r := range key {
		if unicode.IsSpace(r) || unicode.IsControl(r) || !unicode.IsPrint(r) {
			return "", fmt.Errorf("%w: unexpected character at position %d", ErrMalformedLicenseKey, i+1)
		}
	}
	return key, nil
}
