// Package command implements puzzle.Fetcher by shelling out to a
// command-line HTTP client (curl by default). It is the escalation path when
// library-level fetching or decoding fails: the tool follows redirects,
// negotiates every compression scheme it supports, and decompresses itself.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// DefaultUserAgent is the generic user agent passed to the command.
const DefaultUserAgent = "Mozilla/5.0"

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns stdout. Stderr is folded into the
// error on failure.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}

// Config controls the command invocation.
type Config struct {
	Path      string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher fetches URLs through an external command.
type Fetcher struct {
	cfg    Config
	runner Runner
}

// New builds a Fetcher. A nil runner uses ExecRunner.
func New(cfg Config, runner Runner) *Fetcher {
	if cfg.Path == "" {
		cfg.Path = "curl"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Fetcher{cfg: cfg, runner: runner}
}

// Args returns the command arguments used for url.
func (f *Fetcher) Args(url string) []string {
	return []string{
		"-s",
		"-L",
		"--compressed",
		"-A", f.cfg.UserAgent,
		"--max-time", strconv.Itoa(int(f.cfg.Timeout.Seconds())),
		url,
	}
}

// Fetch runs the command and returns its stdout verbatim as the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (puzzle.FetchResult, error) {
	if strings.TrimSpace(url) == "" {
		return puzzle.FetchResult{}, errors.New("url is required")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout+time.Second)
	defer cancel()

	start := time.Now()
	out, err := f.runner.Run(ctx, f.cfg.Path, f.Args(url)...)
	if err != nil {
		return puzzle.FetchResult{}, fmt.Errorf("command fetch: %w", err)
	}
	return puzzle.FetchResult{
		URL:      url,
		Body:     out,
		Duration: time.Since(start),
	}, nil
}
