package telemetry

import (
	"fmt"
	"io"
	"os"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter kinds accepted by NewExporter.
const (
	ExporterGCP    = "gcp"
	ExporterStdout = "stdout"
)

// ExporterConfig selects where finished spans go.
type ExporterConfig struct {
	Kind      string
	ProjectID string
	// Writer receives stdout spans. Defaults to os.Stderr so command output
	// on stdout stays clean.
	Writer io.Writer
}

// NewExporter builds a span exporter: Google Cloud Trace for gcp, JSON lines
// for stdout.
func NewExporter(cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Kind {
	case ExporterGCP:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("google trace exporter requires a project id")
		}
		exp, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("failed to create google trace exporter: %w", err)
		}
		return exp, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Kind)
	}
}
