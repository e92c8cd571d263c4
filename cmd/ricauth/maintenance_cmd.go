package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending email change requests older than the configured lifetime",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.EmailChanges.ExpireStale(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d email change request(s)\n", n)
			return nil
		},
	}
}

func newHierarchyCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Group hierarchy maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recompute",
		Short: "Rewrite every group depth from its parent chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Groups.RecomputeHierarchies(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %d group(s)\n", n)
			return nil
		},
	})
	return cmd
}

func newOutboxCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox maintenance",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "process-once",
			Short: "Deliver one batch of queued messages and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				relay, err := a.NewRelay()
				if err != nil {
					return err
				}
				n, err := relay.ProcessOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "processed %d message(s)\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Delete delivered messages past the retention window",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := open(cmd)
				if err != nil {
					return err
				}
				defer a.Close()

				cleaner, err := a.NewCleaner()
				if err != nil {
					return err
				}
				n, err := cleaner.CleanOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d message(s)\n", n)
				return nil
			},
		},
	)
	return cmd
}
