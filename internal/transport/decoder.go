// Package transport retrieves remote documents and turns whatever bytes come
// back into markup. Upstream servers mislabel compression and sit behind
// bot protection, so the Decoder walks an ordered chain of decode strategies
// and then escalates to alternative fetchers before giving up.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crossword-scraper/internal/metrics"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Escalation is an alternative fetcher tried after the decode chain fails.
// Raw marks fetchers whose body is the verbatim resource, making them usable
// for binary downloads.
type Escalation struct {
	Name    string
	Fetcher puzzle.Fetcher
	Raw     bool
}

// Pacer delays outbound requests. Limiter is optional.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Config wires the Decoder.
type Config struct {
	Primary       puzzle.Fetcher
	Escalations   []Escalation
	BrotliEnabled bool
	Limiter       Pacer
	Logger        *zap.Logger
}

// Decoded is the accepted markup plus the strategy that produced it.
type Decoded struct {
	Text     string
	Strategy string
	URL      string
}

// Decoder fetches URLs and decodes their bodies into markup.
type Decoder struct {
	primary     puzzle.Fetcher
	strategies  []Strategy
	escalations []Escalation
	limiter     Pacer
	logger      *zap.Logger
}

// New constructs a Decoder.
func New(cfg Config) (*Decoder, error) {
	if cfg.Primary == nil {
		return nil, errors.New("primary fetcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{
		primary:     cfg.Primary,
		strategies:  DefaultStrategies(cfg.BrotliEnabled),
		escalations: cfg.Escalations,
		limiter:     cfg.Limiter,
		logger:      logger,
	}, nil
}

// Fetch returns the first non-empty markup produced by the decode chain or an
// escalation fetcher. When everything fails the error wraps puzzle.ErrTransport.
func (d *Decoder) Fetch(ctx context.Context, url string) (Decoded, error) {
	var lastErr error

	res, err := d.fetch(ctx, "primary", d.primary, url)
	if err != nil {
		d.logger.Warn("primary fetch failed, escalating", zap.String("url", url), zap.Error(err))
		lastErr = err
	} else {
		res.DetectedEncoding = SniffEncoding(res.Body)
		if out, ok := d.decode(res); ok {
			return out, nil
		}
		d.logger.Info("decode chain exhausted, escalating",
			zap.String("url", url),
			zap.Int("status", res.StatusCode),
			zap.String("declared_encoding", res.DeclaredEncoding),
			zap.String("detected_encoding", res.DetectedEncoding),
			zap.Int("bytes", len(res.Body)),
		)
	}

	for _, esc := range d.escalations {
		escRes, err := d.fetch(ctx, esc.Name, esc.Fetcher, url)
		if err != nil {
			d.logger.Warn("escalation fetch failed", zap.String("fetcher", esc.Name), zap.Error(err))
			metrics.ObserveFetch(esc.Name, false)
			lastErr = err
			continue
		}
		text := string(escRes.Body)
		ok := LooksLikeMarkup(text)
		metrics.ObserveFetch(esc.Name, ok)
		if ok {
			d.logger.Info("escalation succeeded", zap.String("fetcher", esc.Name), zap.String("url", url))
			return Decoded{Text: text, Strategy: esc.Name, URL: resultURL(escRes, url)}, nil
		}
	}

	if lastErr != nil {
		return Decoded{}, fmt.Errorf("%w: %s: %w", puzzle.ErrTransport, url, lastErr)
	}
	return Decoded{}, fmt.Errorf("%w: %s: no strategy produced markup", puzzle.ErrTransport, url)
}

// Download returns the raw body of url. Only escalations marked Raw are tried
// when the primary fetch fails.
func (d *Decoder) Download(ctx context.Context, url string) ([]byte, error) {
	res, err := d.fetch(ctx, "primary", d.primary, url)
	if err == nil && len(res.Body) > 0 {
		return res.Body, nil
	}
	lastErr := err
	for _, esc := range d.escalations {
		if !esc.Raw {
			continue
		}
		escRes, err := d.fetch(ctx, esc.Name, esc.Fetcher, url)
		if err != nil {
			lastErr = err
			continue
		}
		if len(escRes.Body) > 0 {
			return escRes.Body, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: download %s: %w", puzzle.ErrTransport, url, lastErr)
	}
	return nil, fmt.Errorf("%w: download %s: empty body", puzzle.ErrTransport, url)
}

func (d *Decoder) decode(res puzzle.FetchResult) (Decoded, bool) {
	for _, s := range d.strategies {
		text, err := s.Decode(res)
		if errors.Is(err, errNotApplicable) {
			continue
		}
		ok := err == nil && LooksLikeMarkup(text)
		metrics.ObserveFetch(s.Name, ok)
		if ok {
			d.logger.Debug("decoded response", zap.String("strategy", s.Name), zap.String("url", res.URL))
			return Decoded{Text: text, Strategy: s.Name, URL: res.URL}, true
		}
		d.logger.Debug("decode strategy failed", zap.String("strategy", s.Name), zap.Error(err))
	}
	return Decoded{}, false
}

func (d *Decoder) fetch(ctx context.Context, name string, f puzzle.Fetcher, url string) (puzzle.FetchResult, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, url); err != nil {
			return puzzle.FetchResult{}, err
		}
	}
	start := time.Now()
	res, err := f.Fetch(ctx, url)
	metrics.ObserveFetchDuration(name, time.Since(start))
	return res, err
}

func resultURL(res puzzle.FetchResult, fallback string) string {
	if res.URL != "" {
		return res.URL
	}
	return fallback
}
