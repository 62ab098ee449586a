// Package license claims and resolves license seats for the local machine
// and registers this process as their consumer.
//
// # Activation
//
// Activation validates the license key scoped to the machine fingerprint
// and acts on the result:
//
//	valid                               -> look up the existing machine
//	FINGERPRINT_SCOPE_MISMATCH,
//	NO_MACHINES, NO_MACHINE             -> claim a seat (create machine)
//	any other code                      -> *errors.LicenseInvalid
//
// Exactly one claim is attempted per call. A failed claim is returned as
// *errors.ActivationRejected wrapping the *errors.GatewayError. Machines are
// never deleted; seats persist across runs.
//
// # Registration
//
//	activator := license.NewActivator(client, registrar, license.WithLogger(logger))
//	machine, err := activator.Activate(ctx, fingerprint, key)
//	process, err := registrar.Register(ctx, machine, key)
//	...
//	err = registrar.Deregister(ctx, process.ID, key)
//
// # Logging
//
// License keys never appear in logs. Records carry MaskKey and HashKey
// values instead.
package license
