// Package locator decides which document holds a puzzle and unwraps it into
// an HTML payload. Latest puzzles come from the site feed; dated puzzles come
// from a slug derived from the date.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
	"github.com/JakeFAU/crossword-scraper/internal/transport"
)

// Defaults for the puzzle source.
const (
	DefaultFeedURL = "https://nyxcrossword.com/feed"
	DefaultBaseURL = "https://nyxcrossword.com"
)

// ErrFeedItemMissing is returned when a feed carries no item.
var ErrFeedItemMissing = fmt.Errorf("%w: feed item missing", puzzle.ErrExtraction)

// DocumentFetcher returns decoded markup for a URL.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (transport.Decoded, error)
}

// Config holds source URLs.
type Config struct {
	FeedURL string
	BaseURL string
}

// Payload is the HTML that carries the puzzle plus its title.
type Payload struct {
	Title     string
	HTML      string
	SourceURL string
}

// Locator resolves requests to documents.
type Locator struct {
	feedURL string
	baseURL string
	docs    DocumentFetcher
	logger  *zap.Logger
}

// New constructs a Locator. Empty config fields fall back to the defaults.
func New(cfg Config, docs DocumentFetcher, logger *zap.Logger) *Locator {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{
		feedURL: cfg.FeedURL,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		docs:    docs,
		logger:  logger,
	}
}

// URLFor returns the feed URL for latest requests and the dated slug
// otherwise. A slug that no longer matches the site is not searched for.
func (l *Locator) URLFor(req puzzle.Request) string {
	if req.Latest() {
		return l.feedURL
	}
	return l.baseURL + "/" + Slug(*req.Date)
}

// Slug renders the dated path, for example
// 2024/03/0310-24-ny-times-crossword-10-mar-24-sunday.html.
func Slug(d time.Time) string {
	var b strings.Builder
	b.WriteString(d.Format("2006/01/0102-06"))
	b.WriteString("-ny-times-crossword-")
	b.WriteString(strconv.Itoa(d.Day()))
	b.WriteByte('-')
	b.WriteString(strings.ToLower(d.Format("Jan")))
	b.WriteByte('-')
	b.WriteString(d.Format("06"))
	b.WriteByte('-')
	b.WriteString(strings.ToLower(d.Weekday().String()))
	b.WriteString(".html")
	return b.String()
}

// GridSize returns 21 for Sunday puzzles and 15 otherwise. Without a date the
// title decides.
func GridSize(date *time.Time, title string) int {
	if date != nil {
		if date.Weekday() == time.Sunday {
			return puzzle.SundaySize
		}
		return puzzle.StandardSize
	}
	if strings.Contains(strings.ToLower(title), "sunday") {
		return puzzle.SundaySize
	}
	return puzzle.StandardSize
}

// IsFeed reports whether text is an RSS document.
func IsFeed(text string) bool {
	return strings.Contains(strings.ToLower(text), "<rss")
}

// Payload unwraps doc. Feeds yield their first item's HTML, following the
// item link through the fetcher when the item carries no body. Any other
// document is its own payload.
func (l *Locator) Payload(ctx context.Context, doc transport.Decoded) (Payload, error) {
	if !IsFeed(doc.Text) {
		return Payload{Title: PageTitle(doc.Text), HTML: doc.Text, SourceURL: doc.URL}, nil
	}

	item, err := firstItem(doc.Text)
	if err != nil {
		return Payload{}, err
	}
	l.logger.Info("feed item located", zap.String("title", item.title), zap.String("link", item.link))

	body := item.content
	if body == "" {
		body = item.description
	}
	if strings.TrimSpace(body) != "" {
		return Payload{Title: item.title, HTML: body, SourceURL: item.link}, nil
	}

	if item.link == "" {
		return Payload{}, fmt.Errorf("%w: feed item has neither body nor link", puzzle.ErrExtraction)
	}
	l.logger.Warn("feed item has no body, following link", zap.String("link", item.link))
	if l.docs == nil {
		return Payload{}, errors.New("no document fetcher configured")
	}
	page, err := l.docs.Fetch(ctx, item.link)
	if err != nil {
		return Payload{}, fmt.Errorf("follow feed link: %w", err)
	}
	title := item.title
	if title == "" {
		title = PageTitle(page.Text)
	}
	return Payload{Title: title, HTML: page.Text, SourceURL: item.link}, nil
}

// PageTitle returns the document title, or its first h1.
func PageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

type feedItem struct {
	title       string
	link        string
	content     string
	description string
}

func firstItem(text string) (feedItem, error) {
	root, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return feedItem{}, fmt.Errorf("%w: parse feed: %w", puzzle.ErrExtraction, err)
	}
	node := xmlquery.FindOne(root, "//item")
	if node == nil {
		return feedItem{}, ErrFeedItemMissing
	}

	var item feedItem
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		switch {
		case child.Prefix == "" && child.Data == "title":
			item.title = strings.TrimSpace(child.InnerText())
		case child.Prefix == "" && child.Data == "link":
			item.link = strings.TrimSpace(child.InnerText())
		case child.Prefix == "content" && child.Data == "encoded":
			item.content = child.InnerText()
		case child.Prefix == "" && child.Data == "description":
			item.description = child.InnerText()
		}
	}
	return item, nil
}
