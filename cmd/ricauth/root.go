package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ricauth/internal/app"
	"ricauth/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "ricauth",
		Short:         "Account, organization and group service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")

	open := func(cmd *cobra.Command) (*app.App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		return app.New(cmd.Context(), cfg, cfg.NewLogger())
	}

	cmd.AddCommand(
		newServeCmd(open),
		newMigrateCmd(open),
		newSweepCmd(open),
		newHierarchyCmd(open),
		newCreateUserCmd(open),
		newOutboxCmd(open),
	)
	return cmd
}

// opener builds the application for one command run. The caller closes it.
type opener func(cmd *cobra.Command) (*app.App, error)

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		_, _ = os.Stderr.WriteString("ricauth: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}
