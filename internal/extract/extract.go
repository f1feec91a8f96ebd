package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

// ErrNoImage is returned when the payload holds no usable grid image.
var ErrNoImage = fmt.Errorf("%w: no grid image found", puzzle.ErrExtraction)

// Content is what the extractor recovers from one HTML payload.
type Content struct {
	ImageURL string
	Clues    puzzle.Clues
}

// Extract parses payload once and returns the best grid image plus clues.
// A missing image is reported as ErrNoImage alongside the parsed clues.
func Extract(payload string) (Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload))
	if err != nil {
		return Content{}, fmt.Errorf("%w: parse html: %w", puzzle.ErrExtraction, err)
	}
	content := Content{Clues: ParseClues(Text(doc))}
	imageURL, ok := BestImage(doc)
	if !ok {
		return content, ErrNoImage
	}
	content.ImageURL = imageURL
	return content, nil
}

// IsNoImage reports whether err came from a payload without a grid image.
func IsNoImage(err error) bool {
	return errors.Is(err, ErrNoImage)
}

// Text returns the document's visible text nodes, one per line.
func Text(doc *goquery.Document) string {
	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, "\n")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		*parts = append(*parts, n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, parts)
	}
}
