// Package app wires licensebeat together and runs it.
//
// # Initialization Flow
//
//  1. Load configuration from the environment and an optional YAML file
//  2. Initialize logging and OpenTelemetry
//  3. Build the gateway client, license activator, registrar and heartbeat scheduler
//  4. Build the lifecycle coordinator and, when configured, the status server
//
// # Run
//
// Run reads the license key, computes the machine fingerprint and drives the
// coordinator until SIGINT or SIGTERM asks it to shut down:
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    ...
//	}
//	err = application.Run(ctx)
//	application.Close(ctx)
//	os.Exit(app.ExitCode(err))
package app
