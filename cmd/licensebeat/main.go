// Command licensebeat activates a license for this machine, registers the
// running process with the licensing service and keeps it alive with
// heartbeats until interrupted.
package main

import (
	"context"
	"os"

	"licensebeat/internal/app"
	"licensebeat/internal/console"
)

func main() {
	os.Exit(run())
}

func run() int {
	application, err := app.NewApplication()
	if err != nil {
		console.NewStdio(os.Getenv("LICENSEBEAT_DEBUG") == "true").Error(err)
		return app.ExitCode(err)
	}

	ctx := context.Background()
	err = application.Run(ctx)
	application.Close(ctx)

	if err != nil {
		application.Console.Error(err)
	}
	return app.ExitCode(err)
}
