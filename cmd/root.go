package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the command line; cancelling ctx stops a running workflow between actions.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(nil)
}

// newRootCmdWith lets tests swap collaborators after wiring.
func newRootCmdWith(customize func(*app)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "xhs",
		Short:         "xhs: paced Xiaohongshu actions and workflows",
		Long:          "xhs drives a logged-in Xiaohongshu browser session at a human pace: it keeps daily action quotas, stops on verification challenges, and runs the publish, explore and comment workflows.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(cmd *cobra.Command, _ []string) error {
			return respond(cmd, result{}, fmt.Errorf("wire app: %w", err))
		}
		return rootCmd
	}
	if customize != nil {
		customize(app)
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newCheckQuotaCmd(app),
		newPerformActionCmd(app),
		newRunSOPCmd(app),
		newStrategyCmd(app),
		newSessionCmd(app),
	)

	return rootCmd
}
