// Package cmd defines the CLI commands for the crossword-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crossword-scraper/internal/api"
	"github.com/JakeFAU/crossword-scraper/internal/config"
	"github.com/JakeFAU/crossword-scraper/internal/server"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the built application. Tests inject a
// fake through the factory passed to newRootCmd.
type App interface {
	Run(ctx context.Context) error
	Puzzles() api.PuzzleService
	Close(ctx context.Context)
}

type appFactory func(ctx context.Context, cfg *config.Config) (App, error)

func buildServerApp(ctx context.Context, cfg *config.Config) (App, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates the root command. The app is built after flags are
// parsed and before any subcommand runs.
func newRootCmd(build appFactory) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "crossword-scraper",
		Short: "Fetches crossword puzzles and reconstructs their grids.",
		Long: `crossword-scraper locates a daily crossword on the puzzle source, decodes
the page through a chain of fetch strategies, extracts the clues and the grid
image, and rebuilds the grid layout from the image. It runs as an HTTP service
or fetches a single puzzle from the command line.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment overrides use the CROSSWORD_ prefix")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newFetchCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// withApp adapts run into a RunE that closes the app however run returns.
// Cobra skips post-run hooks after a RunE error, so closing happens here.
func withApp(run func(cmd *cobra.Command, app App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			appInstance.Close(ctx)
		}()
		return run(cmd, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd(buildServerApp)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
