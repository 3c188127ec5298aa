package cmd

import (
	"context"
	"fmt"

	"apguard/bootstrap"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the responder in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResponder(cmd.Context())
		},
	}
}

// runResponder initializes and starts apguard and blocks until shutdown.
func runResponder(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := bootstrap.NewApp(ctx, configFile)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	runErr := app.WaitForShutdown()
	app.Shutdown()
	return runErr
}
