// Package fingerprint derives the stable machine identifier a license seat
// is bound to.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/host"

	"licensebeat/internal/infrastructure"
)

// Components are the host facts a fingerprint is hashed from
type Components struct {
	HostID     string `json:"host_id"`
	Hostname   string `json:"hostname"`
	MACAddress string `json:"mac_address"`
	OS         string `json:"os"`
	Platform   string `json:"platform"`
}

// Source produces the fingerprint of the local machine. The value is
// computed once and reused for the lifetime of the Source.
type Source struct {
	hostID   func(ctx context.Context) (string, error)
	hostname func() (string, error)
	mac      func() (string, error)
	logger   *slog.Logger

	once  sync.Once
	value string
	err   error
}

// NewSource creates a Source backed by the host's machine id, falling back
// to the primary MAC address and hostname.
func NewSource(logger *slog.Logger) *Source {
	return &Source{
		hostID:   host.HostIDWithContext,
		hostname: hostname,
		mac:      macAddress,
		logger:   infrastructure.WithComponent(logger, "fingerprint"),
	}
}

// Fingerprint returns the hex sha256 of the machine components
func (s *Source) Fingerprint(ctx context.Context) (string, error) {
	s.once.Do(func() {
		c := s.Components(ctx)
		if c.HostID == "" && c.MACAddress == "" && c.Hostname == "" {
			s.err = fmt.Errorf("no stable machine identifier available")
			return
		}
		s.value = hash(c)
		s.logger.DebugContext(ctx, "machine fingerprint computed",
			slog.String("fingerprint", s.value),
			slog.Bool("host_id", c.HostID != ""),
			slog.String("os", c.OS),
			slog.String("platform", c.Platform),
		)
	})
	return s.value, s.err
}

// Components collects the raw host facts. Unavailable facts are left
// empty and logged.
func (s *Source) Components(ctx context.Context) Components {
	c := Components{OS: runtime.GOOS, Platform: runtime.GOARCH}

	var err error
	if c.HostID, err = s.hostID(ctx); err != nil {
		s.logger.WarnContext(ctx, "host id unavailable", slog.String("error", err.Error()))
	}
	if c.Hostname, err = s.hostname(); err != nil {
		s.logger.WarnContext(ctx, "hostname unavailable", slog.String("error", err.Error()))
	}
	if c.MACAddress, err = s.mac(); err != nil {
		s.logger.WarnContext(ctx, "MAC address unavailable", slog.String("error", err.Error()))
	}

	c.HostID = strings.ToLower(strings.TrimSpace(c.HostID))
	return c
}

// hash uses the OS machine id alone when there is one; the MAC address and
// hostname only stand in for a missing host id.
func hash(c Components) string {
	input := "host:" + c.HostID
	if c.HostID == "" {
		input = strings.Join([]string{"fallback", c.MACAddress, c.Hostname, c.OS, c.Platform}, "|")
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return name, nil
}

// macAddress returns the first non-loopback interface address that is up
func macAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}
