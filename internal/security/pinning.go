package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrPinMismatch is returned when no certificate in the verified chain
// matches a configured pin
var ErrPinMismatch = errors.New("certificate pin verification failed")

// CertificatePinner restricts TLS connections to servers whose verified
// chain contains one of a set of SPKI SHA-256 pins.
type CertificatePinner struct {
	pins    map[string]struct{}
	rootCAs *x509.CertPool
	logger  *slog.Logger
}

// PinnerOption configures a CertificatePinner
type PinnerOption func(*CertificatePinner)

// WithRootCAs verifies chains against pool instead of the system roots
func WithRootCAs(pool *x509.CertPool) PinnerOption {
	return func(cp *CertificatePinner) {
		cp.rootCAs = pool
	}
}

// WithPinLogger sets the logger used for pin failures
func WithPinLogger(logger *slog.Logger) PinnerOption {
	return func(cp *CertificatePinner) {
		cp.logger = logger
	}
}

// NewCertificatePinner creates a pinner for hex-encoded SPKI hashes.
func NewCertificatePinner(pins []string, opts ...PinnerOption) (*CertificatePinner, error) {
	if len(pins) == 0 {
		return nil, errors.New("at least one certificate pin is required")
	}

	cp := &CertificatePinner{
		pins:   make(map[string]struct{}, len(pins)),
		logger: slog.Default(),
	}
	for _, pin := range pins {
		if err := validatePin(pin); err != nil {
			return nil, err
		}
		cp.pins[strings.ToLower(pin)] = struct{}{}
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp, nil
}

// HTTPClient returns a client whose TLS handshakes enforce the pins. Like
// the default client it sets no overall request timeout.
func (cp *CertificatePinner) HTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cp.TLSConfig()
	return &http.Client{Transport: transport}
}

// TLSConfig returns the pinned TLS configuration
func (cp *CertificatePinner) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:            tls.VersionTLS12,
		RootCAs:               cp.rootCAs,
		VerifyPeerCertificate: cp.verifyPeerCertificate,
	}
}

// verifyPeerCertificate runs after standard chain verification
func (cp *CertificatePinner) verifyPeerCertificate(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(verifiedChains) == 0 {
		return errors.New("no verified certificate chains")
	}

	for _, chain := range verifiedChains {
		for _, cert := range chain {
			if _, ok := cp.pins[SPKIHash(cert)]; ok {
				return nil
			}
		}
	}

	leaf := verifiedChains[0][0]
	cp.logger.Error("certificate pin verification failed",
		slog.String("subject", leaf.Subject.String()),
		slog.String("spki_sha256", SPKIHash(leaf)),
		slog.Time("not_after", leaf.NotAfter.UTC().Truncate(time.Second)),
	)
	return fmt.Errorf("%w for %s", ErrPinMismatch, leaf.Subject.CommonName)
}

// SPKIHash calculates the hex SHA-256 of the certificate's Subject Public Key Info
func SPKIHash(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}

func validatePin(pin string) error {
	if len(pin) != 64 {
		return fmt.Errorf("certificate pin %q must be 64 hex characters (SHA-256)", pin)
	}
	if _, err := hex.DecodeString(pin); err != nil {
		return fmt.Errorf("certificate pin %q is not valid hex: %w", pin, err)
	}
	return nil
}
