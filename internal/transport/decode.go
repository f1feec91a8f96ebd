package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// Strategy names, also used as metric labels.
const (
	StrategyMarkup  = "markup"
	StrategyGzip    = "gzip"
	StrategyDeflate = "deflate"
	StrategyBrotli  = "brotli"
)

var errNotApplicable = errors.New("strategy not applicable")

var gzipMagic = []byte{0x1f, 0x8b}

// Strategy turns a primary fetch result into text. Decode returns
// errNotApplicable when the body does not qualify for the strategy.
type Strategy struct {
	Name   string
	Decode func(res puzzle.FetchResult) (string, error)
}

// DefaultStrategies returns the ordered decode chain. Brotli is appended only
// when enabled.
func DefaultStrategies(brotliEnabled bool) []Strategy {
	strategies := []Strategy{
		{Name: StrategyMarkup, Decode: decodeMarkup},
		{Name: StrategyGzip, Decode: decodeGzip},
		{Name: StrategyDeflate, Decode: decodeDeflate},
	}
	if brotliEnabled {
		strategies = append(strategies, Strategy{Name: StrategyBrotli, Decode: decodeBrotli})
	}
	return strategies
}

// LooksLikeMarkup reports whether text is non-empty XML or HTML.
func LooksLikeMarkup(text string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" {
		return false
	}
	return strings.HasPrefix(trimmed, "<?xml") ||
		strings.Contains(trimmed, "<rss") ||
		strings.Contains(trimmed, "<html")
}

// SniffEncoding inspects the leading bytes of body and names the compression
// it appears to use, or "" when nothing is recognized.
func SniffEncoding(body []byte) string {
	switch {
	case bytes.HasPrefix(body, gzipMagic):
		return "gzip"
	case len(body) >= 2 && body[0]&0x0f == 8 && (uint16(body[0])<<8|uint16(body[1]))%31 == 0:
		return "deflate"
	default:
		return ""
	}
}

func decodeMarkup(res puzzle.FetchResult) (string, error) {
	text := string(res.Body)
	if !LooksLikeMarkup(text) {
		return "", errNotApplicable
	}
	return text, nil
}

func decodeGzip(res puzzle.FetchResult) (string, error) {
	if !bytes.HasPrefix(res.Body, gzipMagic) {
		return "", errNotApplicable
	}
	zr, err := gzip.NewReader(bytes.NewReader(res.Body))
	if err != nil {
		return "", fmt.Errorf("gzip reader: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return readAll(zr)
}

func decodeDeflate(res puzzle.FetchResult) (string, error) {
	if res.DeclaredEncoding != "deflate" {
		return "", errNotApplicable
	}
	if zr, err := zlib.NewReader(bytes.NewReader(res.Body)); err == nil {
		defer func() { _ = zr.Close() }()
		if text, err := readAll(zr); err == nil {
			return text, nil
		}
	}
	fr := flate.NewReader(bytes.NewReader(res.Body))
	defer func() { _ = fr.Close() }()
	return readAll(fr)
}

func decodeBrotli(res puzzle.FetchResult) (string, error) {
	if res.DeclaredEncoding != "br" {
		return "", errNotApplicable
	}
	return readAll(brotli.NewReader(bytes.NewReader(res.Body)))
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decompress: %w", err)
	}
	return string(data), nil
}
