// Package pipeline assembles a puzzle from a request: locate the document,
// decode it, extract the grid image and clues, reconstruct the grid and
// number it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/crossword-scraper/internal/extract"
	"github.com/JakeFAU/crossword-scraper/internal/grid"
	"github.com/JakeFAU/crossword-scraper/internal/locator"
	"github.com/JakeFAU/crossword-scraper/internal/logging"
	"github.com/JakeFAU/crossword-scraper/internal/metrics"
	"github.com/JakeFAU/crossword-scraper/internal/numbering"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
	"github.com/JakeFAU/crossword-scraper/internal/transport"
)

// Run statuses, recorded in metrics and the retrieval log.
const (
	StatusSuccess    = "success"
	StatusDegraded   = "degraded"
	StatusTransport  = "transport_error"
	StatusExtraction = "extraction_error"
	StatusFailed     = "error"
)

const tracerName = "github.com/JakeFAU/crossword-scraper/internal/pipeline"

// Documents fetches decoded markup.
type Documents interface {
	Fetch(ctx context.Context, url string) (transport.Decoded, error)
}

// GridProcessor reconstructs a grid matrix from an image URL.
type GridProcessor interface {
	Process(ctx context.Context, imageURL string, rows, cols int) (grid.Outcome, error)
}

// Config wires the Service. Retrievals and Publisher are optional.
type Config struct {
	Documents  Documents
	Locator    *locator.Locator
	Grid       GridProcessor
	Retrievals puzzle.RetrievalStore
	Publisher  puzzle.Publisher
	Topic      string
	Clock      puzzle.Clock
	IDs        puzzle.IDGenerator
	Logger     *zap.Logger
}

// Service runs the acquisition pipeline.
type Service struct {
	docs       Documents
	locator    *locator.Locator
	grid       GridProcessor
	retrievals puzzle.RetrievalStore
	publisher  puzzle.Publisher
	topic      string
	clock      puzzle.Clock
	ids        puzzle.IDGenerator
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New validates cfg and constructs a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Documents == nil:
		return nil, errors.New("document fetcher is required")
	case cfg.Locator == nil:
		return nil, errors.New("locator is required")
	case cfg.Grid == nil:
		return nil, errors.New("grid processor is required")
	case cfg.Clock == nil:
		return nil, errors.New("clock is required")
	case cfg.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	logger := logging.OrNop(cfg.Logger)
	return &Service{
		docs:       cfg.Documents,
		locator:    cfg.Locator,
		grid:       cfg.Grid,
		retrievals: cfg.Retrievals,
		publisher:  cfg.Publisher,
		topic:      cfg.Topic,
		clock:      cfg.Clock,
		ids:        cfg.IDs,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// run carries the bookkeeping for one GetPuzzle call.
type run struct {
	record puzzle.RetrievalRecord
	status string
}

// GetPuzzle fetches and assembles the puzzle for req. Transport and
// extraction failures abort; image failures degrade to an all-playable grid.
func (s *Service) GetPuzzle(ctx context.Context, req puzzle.Request) (result puzzle.Result, err error) {
	id, err := s.ids.NewID()
	if err != nil {
		return puzzle.Result{}, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{record: puzzle.RetrievalRecord{ID: id, StartedAt: s.clock.Now()}}
	logger := logging.ForRun(s.logger, id)

	ctx, span := s.tracer.Start(ctx, "GetPuzzle", trace.WithAttributes(attribute.String("run_id", id)))
	defer func() {
		s.finish(ctx, logger, r, result, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("status", r.status))
		span.End()
	}()

	target := s.locator.URLFor(req)
	r.record.URL = target
	logger.Info("fetching puzzle document", zap.String("url", target), zap.Bool("latest", req.Latest()))

	doc, err := s.fetch(ctx, target)
	if err != nil {
		r.status = StatusTransport
		return puzzle.Result{}, err
	}
	r.record.Strategy = doc.Strategy

	payload, err := s.locator.Payload(ctx, doc)
	if err != nil {
		r.status = classify(err)
		return puzzle.Result{}, fmt.Errorf("locate payload: %w", err)
	}

	content, err := extract.Extract(payload.HTML)
	if err != nil {
		r.status = StatusExtraction
		return puzzle.Result{}, fmt.Errorf("extract content: %w", err)
	}
	imageURL := resolve(firstNonEmpty(payload.SourceURL, doc.URL), content.ImageURL)
	r.record.ImageURL = imageURL
	logger.Info("content extracted",
		zap.String("title", payload.Title),
		zap.String("image_url", imageURL),
		zap.Int("across", len(content.Clues.Across)),
		zap.Int("down", len(content.Clues.Down)),
	)

	size := locator.GridSize(req.Date, payload.Title)
	outcome := s.reconstruct(ctx, logger, imageURL, size)
	r.record.GridPath = outcome.Path
	r.record.ImageDigest = outcome.ImageDigest
	r.status = StatusSuccess
	if outcome.Path == grid.PathDefault {
		r.status = StatusDegraded
	}

	result = puzzle.Result{
		Title:    payload.Title,
		ImageURL: imageURL,
		Grid:     outcome.Grid,
		Numbers:  numbering.Generate(outcome.Grid),
		Clues:    content.Clues,
	}
	if req.Date != nil {
		d := req.Date.Format(puzzle.DateLayout)
		result.Date = &d
	}
	return result, nil
}

func (s *Service) fetch(ctx context.Context, target string) (transport.Decoded, error) {
	ctx, span := s.tracer.Start(ctx, "fetch", trace.WithAttributes(attribute.String("url", target)))
	defer span.End()
	doc, err := s.docs.Fetch(ctx, target)
	if err != nil {
		span.RecordError(err)
		return transport.Decoded{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	span.SetAttributes(attribute.String("strategy", doc.Strategy))
	return doc, nil
}

func (s *Service) reconstruct(ctx context.Context, logger *zap.Logger, imageURL string, size int) grid.Outcome {
	ctx, span := s.tracer.Start(ctx, "reconstruct", trace.WithAttributes(attribute.Int("size", size)))
	defer span.End()

	outcome, err := s.grid.Process(ctx, imageURL, size, size)
	if err != nil {
		span.RecordError(err)
		logger.Warn("grid reconstruction failed, using default grid", zap.Int("size", size), zap.Error(err))
		return grid.Outcome{
			Grid:        grid.DefaultGrid(size, size),
			Path:        grid.PathDefault,
			Fallback:    true,
			ImageDigest: outcome.ImageDigest,
		}
	}
	if outcome.Fallback {
		logger.Warn("grid geometry fallback", zap.String("path", outcome.Path))
	}
	span.SetAttributes(attribute.String("path", outcome.Path))
	return outcome
}

// finish records the run in metrics, the retrieval log and the notification
// topic. Storage and publishing failures are logged, never returned.
func (s *Service) finish(ctx context.Context, logger *zap.Logger, r *run, result puzzle.Result, runErr error) {
	if runErr != nil && r.status == "" {
		r.status = classify(runErr)
	}
	metrics.ObservePuzzle(r.status)
	r.record.Status = r.status
	r.record.CompletedAt = s.clock.Now()
	if runErr != nil {
		r.record.ErrorText = runErr.Error()
		logger.Error("puzzle pipeline failed", zap.String("status", r.status), zap.Error(runErr))
	} else {
		logger.Info("puzzle assembled",
			zap.String("status", r.status),
			zap.String("grid_path", r.record.GridPath),
			zap.Int("numbers", len(result.Numbers)),
			zap.Duration("elapsed", r.record.CompletedAt.Sub(r.record.StartedAt)),
		)
	}

	ctx = context.WithoutCancel(ctx)
	if s.retrievals != nil {
		if err := s.retrievals.StoreRetrieval(ctx, r.record); err != nil {
			logger.Warn("store retrieval record", zap.Error(err))
		}
	}
	if s.publisher != nil && runErr == nil {
		note := puzzle.Notification{
			ID:       r.record.ID,
			Title:    result.Title,
			Date:     result.Date,
			ImageURL: result.ImageURL,
			GridPath: r.record.GridPath,
			Rows:     result.Grid.Rows(),
			Cols:     result.Grid.Cols(),
		}
		if msgID, err := s.publisher.Publish(ctx, s.topic, note); err != nil {
			logger.Warn("publish puzzle notification", zap.Error(err))
		} else {
			logger.Debug("puzzle notification published", zap.String("message_id", msgID))
		}
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, puzzle.ErrTransport):
		return StatusTransport
	case errors.Is(err, puzzle.ErrExtraction):
		return StatusExtraction
	default:
		return StatusFailed
	}
}

func resolve(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
