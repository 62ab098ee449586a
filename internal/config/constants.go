package config

import "time"

// Application constants
const (
	AppName    = "licensebeat"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces every environment variable, e.g. LICENSEBEAT_ACCOUNT_ID
	EnvPrefix = "LICENSEBEAT"

	DefaultBaseURL = "https://api.keygen.sh/v1"
	DefaultLogFile = "logs/licensebeat.log"

	// Keygen allows bursts but throttles sustained traffic per IP
	DefaultGatewayRPS   = 5
	DefaultGatewayBurst = 10

	// Pings are sent this much earlier than the server-assigned interval
	DefaultSafetyMargin = 30 * time.Second
	// Floor for the ping period when the interval is not above the margin
	DefaultMinHeartbeatPeriod = 5 * time.Second
)
