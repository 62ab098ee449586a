// Package config loads licensebeat's configuration.
//
// # Configuration Sources
//
// Configuration is assembled in order of increasing precedence:
//
//  1. Default values (Default)
//  2. YAML file (LICENSEBEAT_CONFIG, ./licensebeat.yaml, ./configs/licensebeat.yaml)
//  3. Environment variables (LICENSEBEAT_*)
//
// # Environment Variables
//
//	LICENSEBEAT_ACCOUNT_ID=<keygen account id>     (falls back to KEYGEN_ACCOUNT_ID)
//	LICENSEBEAT_BASE_URL=https://api.keygen.sh/v1
//	LICENSEBEAT_LICENSE_KEY=<key>                  (skips the interactive prompt)
//	LICENSEBEAT_DEBUG=true
//	LICENSEBEAT_GATEWAY_RPS=5
//	LICENSEBEAT_HEARTBEAT_SAFETY_MARGIN=30s
//	LICENSEBEAT_LOGGING_LEVEL=info
//	LICENSEBEAT_LOGGING_OUTPUT=file
//	LICENSEBEAT_STATUS_ADDR=127.0.0.1:9464
//	LICENSEBEAT_TELEMETRY_TRACE_EXPORTER=stdout
//
// The resulting Config is validated with struct tags; validation failures
// are returned as *errors.AppError of type CONFIG.
package config
