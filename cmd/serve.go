package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the puzzle HTTP API",
		Long: `Serves GET /api/latest-crossword and GET /api/crossword?date=YYYY-MM-DD,
plus health probes and Prometheus metrics, until interrupted.`,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			if err := appInstance.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		}),
	}
}
