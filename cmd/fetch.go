package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Output formats for the fetch command.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func newFetchCmd() *cobra.Command {
	var (
		date   string
		format string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches one puzzle and prints it",
		Long: `Runs the pipeline once and prints the assembled puzzle. Without --date the
latest puzzle from the feed is fetched.`,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			req, err := parseRequest(date)
			if err != nil {
				return err
			}
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unsupported format %q (want %s or %s)", format, formatJSON, formatYAML)
			}
			result, err := appInstance.Puzzles().GetPuzzle(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("get puzzle: %w", err)
			}
			return writeResult(cmd.OutOrStdout(), format, result)
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "puzzle date as YYYY-MM-DD (default latest)")
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	return cmd
}

func parseRequest(date string) (puzzle.Request, error) {
	if date == "" {
		return puzzle.Request{}, nil
	}
	d, err := time.Parse(puzzle.DateLayout, date)
	if err != nil {
		return puzzle.Request{}, fmt.Errorf("invalid --date %q: %w", date, err)
	}
	return puzzle.Request{Date: &d}, nil
}

func writeResult(w io.Writer, format string, result puzzle.Result) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
