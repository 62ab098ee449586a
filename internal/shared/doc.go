// Package shared holds helpers used across licensebeat packages.
//
// # Structure
//
//   - testutil: log capture and licensing service fixtures for tests
//
// It should not contain domain logic; anything that talks to the licensing
// service belongs in internal/gateway or internal/license.
package shared
