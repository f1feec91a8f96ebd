// Package grid reconstructs a crossword layout from a rendered puzzle image.
//
// The image is converted to grayscale and adaptively thresholded so grid
// lines stand out as foreground. The largest square-ish outer region is taken
// as the grid; when none qualifies a centered square crop is used instead.
// The crop is scaled onto a fixed canvas and each cell is classified by the
// brightness at its center.
package grid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crossword-scraper/internal/metrics"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Detection paths, also used as metric labels.
const (
	PathContour    = "contour"
	PathCenterCrop = "center_crop"
	PathDefault    = "default"
)

// Downloader returns the raw bytes behind a URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Hasher fingerprints downloaded image bytes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config wires a Reconstructor. Artifacts and Hasher are optional; when
// Artifacts is set, debug images are written for every processed grid.
type Config struct {
	Downloader Downloader
	Artifacts  puzzle.BlobStore
	Hasher     Hasher
	IDs        puzzle.IDGenerator
	Logger     *zap.Logger
}

// Outcome is the result of processing one image.
type Outcome struct {
	Grid      puzzle.GridMatrix
	Path      string
	Fallback  bool
	Bounds    image.Rectangle
	Means     [][]float64
	Artifacts []string
	// ImageDigest is the hex SHA-256 of the downloaded bytes, when a Hasher
	// is configured.
	ImageDigest string
}

// Reconstructor turns grid images into matrices.
type Reconstructor struct {
	downloader Downloader
	artifacts  puzzle.BlobStore
	hasher     Hasher
	ids        puzzle.IDGenerator
	logger     *zap.Logger
}

// New constructs a Reconstructor.
func New(cfg Config) (*Reconstructor, error) {
	if cfg.Downloader == nil {
		return nil, errors.New("downloader is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{
		downloader: cfg.Downloader,
		artifacts:  cfg.Artifacts,
		hasher:     cfg.Hasher,
		ids:        cfg.IDs,
		logger:     logger,
	}, nil
}

// DefaultGrid returns a rows x cols matrix with every cell playable.
func DefaultGrid(rows, cols int) puzzle.GridMatrix {
	matrix := make(puzzle.GridMatrix, rows)
	for r := range matrix {
		matrix[r] = make([]int, cols)
		for c := range matrix[r] {
			matrix[r][c] = puzzle.Playable
		}
	}
	return matrix
}

// Process downloads imageURL and samples it into a rows x cols matrix. On
// error the returned Outcome still carries DefaultGrid so callers can degrade.
func (r *Reconstructor) Process(ctx context.Context, imageURL string, rows, cols int) (Outcome, error) {
	if rows <= 0 || cols <= 0 {
		return Outcome{}, fmt.Errorf("invalid grid size %dx%d", rows, cols)
	}
	fallback := Outcome{Grid: DefaultGrid(rows, cols), Path: PathDefault, Fallback: true}

	data, err := r.downloader.Download(ctx, imageURL)
	if err != nil {
		metrics.ObserveGrid(PathDefault)
		return fallback, fmt.Errorf("download grid image: %w", err)
	}
	digest := r.digest(data)
	fallback.ImageDigest = digest
	img, format, err := decodeImage(data)
	if err != nil {
		metrics.ObserveGrid(PathDefault)
		return fallback, err
	}
	gray := toGray(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	r.logger.Debug("grid image decoded", zap.String("format", format), zap.Int("width", w), zap.Int("height", h))

	out := Outcome{ImageDigest: digest}
	regions := externalRegions(adaptiveThreshold(gray, blockSize, thresholdBias), w, h)
	if best, ok := selectGrid(regions); ok {
		out.Path = PathContour
		out.Bounds = cropToRegion(best)
		r.logger.Info("grid region detected",
			zap.Int("candidates", len(regions)),
			zap.Int("area", best.area),
			zap.Stringer("bounds", best.bounds),
		)
	} else {
		out.Path = PathCenterCrop
		out.Fallback = true
		out.Bounds = centerSquare(gray.Rect)
		r.logger.Warn("no grid region qualified, using center crop",
			zap.Int("candidates", len(regions)),
			zap.Stringer("bounds", out.Bounds),
		)
	}

	canvas := resize(gray, out.Bounds)
	out.Grid, out.Means = sample(canvas, rows, cols)
	metrics.ObserveGrid(out.Path)

	if r.artifacts != nil {
		uris, err := r.writeArtifacts(ctx, r.artifactPrefix(), gray, overlay(canvas, rows, cols, out.Grid))
		if err != nil {
			r.logger.Warn("write grid debug artifacts", zap.Error(err))
		}
		out.Artifacts = uris
	}
	return out, nil
}

func (r *Reconstructor) digest(data []byte) string {
	if r.hasher == nil {
		return ""
	}
	sum, err := r.hasher.Hash(data)
	if err != nil {
		r.logger.Warn("hash grid image", zap.Error(err))
		return ""
	}
	return sum
}

func (r *Reconstructor) artifactPrefix() string {
	if r.ids != nil {
		if id, err := r.ids.NewID(); err == nil {
			return "grid-debug/" + id
		}
	}
	return "grid-debug/" + time.Now().UTC().Format("20060102T150405.000000000")
}
