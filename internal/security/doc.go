// Package security hardens the licensing client: SPKI certificate pinning
// for the gateway transport and sanitizing of license key input.
package security
