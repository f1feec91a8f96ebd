package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crossword-scraper/internal/grid"
	"github.com/JakeFAU/crossword-scraper/internal/locator"
	"github.com/JakeFAU/crossword-scraper/internal/numbering"
	publisherMemory "github.com/JakeFAU/crossword-scraper/internal/publisher/memory"
	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
	"github.com/JakeFAU/crossword-scraper/internal/transport"
)

type fakeDocs struct {
	docs map[string]transport.Decoded
	err  error
	urls []string
}

func (f *fakeDocs) Fetch(_ context.Context, url string) (transport.Decoded, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return transport.Decoded{}, f.err
	}
	doc, ok := f.docs[url]
	if !ok {
		return transport.Decoded{}, fmt.Errorf("%w: no fixture for %s", puzzle.ErrTransport, url)
	}
	return doc, nil
}

type gridCall struct {
	url        string
	rows, cols int
}

type fakeGrid struct {
	blocked [][2]int
	err     error
	calls   []gridCall
}

func (f *fakeGrid) Process(_ context.Context, imageURL string, rows, cols int) (grid.Outcome, error) {
	f.calls = append(f.calls, gridCall{url: imageURL, rows: rows, cols: cols})
	if f.err != nil {
		return grid.Outcome{Grid: grid.DefaultGrid(rows, cols), Path: grid.PathDefault, Fallback: true}, f.err
	}
	m := grid.DefaultGrid(rows, cols)
	for _, b := range f.blocked {
		m[b[0]][b[1]] = puzzle.Blocked
	}
	return grid.Outcome{Grid: m, Path: grid.PathContour, ImageDigest: "digest-1"}, nil
}

type fakeRetrievals struct {
	mu      sync.Mutex
	records []puzzle.RetrievalRecord
	err     error
}

func (f *fakeRetrievals) StoreRetrieval(_ context.Context, rec puzzle.RetrievalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return f.err
}

func (f *fakeRetrievals) Close() error { return nil }

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(c.step)
	return c.now
}

type fakeIDs struct{ next int }

func (f *fakeIDs) NewID() (string, error) {
	f.next++
	return fmt.Sprintf("run-%d", f.next), nil
}

const sundayFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
<item>
<title>NYT Crossword 0310-24 Sunday</title>
<link>https://nyxcrossword.com/2024/03/0310-sunday.html</link>
<content:encoded><![CDATA[
<p><img src="/wp-content/icon.png"><img src="/wp-content/crossword-0310.png" width="600"></p>
<p>Across</p>
<p>1. Capital of France: paris</p>
<p>Down</p>
<p>1D. Feline: cat</p>
]]></content:encoded>
</item>
</channel>
</rss>`

const mondayPage = `<html><head><title>NYT Crossword Monday</title></head><body>
<img src="https://cdn.example.com/grid.jpg" width="300">
<p>5A. Opposite of out: in</p>
</body></html>`

type harness struct {
	svc        *Service
	docs       *fakeDocs
	grid       *fakeGrid
	retrievals *fakeRetrievals
	publisher  *publisherMemory.Publisher
}

func newHarness(t *testing.T, docs map[string]transport.Decoded) *harness {
	t.Helper()
	h := &harness{
		docs:       &fakeDocs{docs: docs},
		grid:       &fakeGrid{blocked: [][2]int{{0, 1}}},
		retrievals: &fakeRetrievals{},
		publisher:  publisherMemory.New(),
	}
	svc, err := New(Config{
		Documents:  h.docs,
		Locator:    locator.New(locator.Config{}, h.docs, nil),
		Grid:       h.grid,
		Retrievals: h.retrievals,
		Publisher:  h.publisher,
		Topic:      "puzzles",
		Clock:      &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
		IDs:        &fakeIDs{},
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestGetPuzzleLatestFromFeed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]transport.Decoded{
		locator.DefaultFeedURL: {Text: sundayFeed, Strategy: transport.StrategyGzip, URL: locator.DefaultFeedURL},
	})

	res, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{})
	require.NoError(t, err)
	require.Equal(t, "NYT Crossword 0310-24 Sunday", res.Title)
	require.Equal(t, "https://nyxcrossword.com/wp-content/crossword-0310.png", res.ImageURL)
	require.Nil(t, res.Date)

	require.Equal(t, []gridCall{{url: res.ImageURL, rows: 21, cols: 21}}, h.grid.calls)
	require.Equal(t, 21, res.Grid.Rows())
	require.Equal(t, 21, res.Grid.Cols())
	require.Equal(t, puzzle.Blocked, res.Grid[0][1])
	require.Equal(t, numbering.Generate(res.Grid), res.Numbers)

	require.Equal(t, puzzle.ClueEntry{Clue: "Capital of France", Answer: "PARIS"}, res.Clues.Across[1])
	require.Equal(t, puzzle.ClueEntry{Clue: "Feline", Answer: "CAT"}, res.Clues.Down[1])

	require.Len(t, h.retrievals.records, 1)
	rec := h.retrievals.records[0]
	require.Equal(t, "run-1", rec.ID)
	require.Equal(t, locator.DefaultFeedURL, rec.URL)
	require.Equal(t, transport.StrategyGzip, rec.Strategy)
	require.Equal(t, grid.PathContour, rec.GridPath)
	require.Equal(t, "digest-1", rec.ImageDigest)
	require.Equal(t, StatusSuccess, rec.Status)
	require.Empty(t, rec.ErrorText)
	require.True(t, rec.CompletedAt.After(rec.StartedAt))

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "puzzles", msgs[0].Topic)
	note, ok := msgs[0].Payload.(puzzle.Notification)
	require.True(t, ok)
	require.Equal(t, "run-1", note.ID)
	require.Equal(t, 21, note.Rows)
	require.Equal(t, grid.PathContour, note.GridPath)
}

func TestGetPuzzleDatedPage(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	pageURL := "https://nyxcrossword.com/2024/03/0311-24-ny-times-crossword-11-mar-24-monday.html"
	h := newHarness(t, map[string]transport.Decoded{
		pageURL: {Text: mondayPage, Strategy: transport.StrategyMarkup, URL: pageURL},
	})

	res, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{Date: &date})
	require.NoError(t, err)
	require.Equal(t, []string{pageURL}, h.docs.urls)
	require.Equal(t, "NYT Crossword Monday", res.Title)
	require.Equal(t, "https://cdn.example.com/grid.jpg", res.ImageURL)
	require.NotNil(t, res.Date)
	require.Equal(t, "2024-03-11", *res.Date)
	require.Equal(t, 15, res.Grid.Rows())
	require.Equal(t, puzzle.ClueEntry{Clue: "Opposite of out", Answer: "IN"}, res.Clues.Across[5])
	require.Empty(t, res.Clues.Down)
}

func TestGetPuzzleTransportFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.docs.err = fmt.Errorf("%w: every strategy failed", puzzle.ErrTransport)

	_, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{})
	require.ErrorIs(t, err, puzzle.ErrTransport)
	require.Empty(t, h.grid.calls)
	require.Empty(t, h.publisher.Messages())

	require.Len(t, h.retrievals.records, 1)
	rec := h.retrievals.records[0]
	require.Equal(t, StatusTransport, rec.Status)
	require.Contains(t, rec.ErrorText, "every strategy failed")
}

func TestGetPuzzleMissingImageAborts(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>Tuesday</title></head><body><p>1A. Clue: ANSWER</p></body></html>`
	h := newHarness(t, map[string]transport.Decoded{
		locator.DefaultFeedURL: {Text: page, Strategy: transport.StrategyMarkup},
	})

	_, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{})
	require.ErrorIs(t, err, puzzle.ErrExtraction)
	require.Empty(t, h.grid.calls)
	require.Equal(t, StatusExtraction, h.retrievals.records[0].Status)
}

func TestGetPuzzleEmptyFeedAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]transport.Decoded{
		locator.DefaultFeedURL: {Text: `<rss><channel></channel></rss>`, Strategy: transport.StrategyMarkup},
	})

	_, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{})
	require.ErrorIs(t, err, locator.ErrFeedItemMissing)
	require.Equal(t, StatusExtraction, h.retrievals.records[0].Status)
}

func TestGetPuzzleImageFailureDegrades(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC)
	pageURL := "https://nyxcrossword.com/2024/03/0311-24-ny-times-crossword-11-mar-24-monday.html"
	h := newHarness(t, map[string]transport.Decoded{
		pageURL: {Text: mondayPage, Strategy: transport.StrategyMarkup, URL: pageURL},
	})
	h.grid.err = fmt.Errorf("decode: %w", puzzle.ErrImageDecode)

	res, err := h.svc.GetPuzzle(context.Background(), puzzle.Request{Date: &date})
	require.NoError(t, err)
	require.Equal(t, grid.DefaultGrid(15, 15), res.Grid)
	require.Len(t, res.Numbers, 29)
	require.Equal(t, StatusDegraded, h.retrievals.records[0].Status)
	require.Equal(t, grid.PathDefault, h.retrievals.records[0].GridPath)
	require.Len(t, h.publisher.Messages(), 1)
}

type mockRetrievals struct {
	mock.Mock
}

func (m *mockRetrievals) StoreRetrieval(ctx context.Context, rec puzzle.RetrievalRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockRetrievals) Close() error { return nil }

func TestGetPuzzleSideEffectFailuresAreIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]transport.Decoded{
		locator.DefaultFeedURL: {Text: sundayFeed, Strategy: transport.StrategyMarkup},
	})
	store := &mockRetrievals{}
	store.On("StoreRetrieval", mock.Anything, mock.MatchedBy(func(rec puzzle.RetrievalRecord) bool {
		return rec.Status == StatusSuccess && rec.Strategy == transport.StrategyMarkup
	})).Return(errors.New("database down")).Once()

	svc, err := New(Config{
		Documents:  h.docs,
		Locator:    locator.New(locator.Config{}, h.docs, nil),
		Grid:       h.grid,
		Retrievals: store,
		Clock:      &stepClock{now: time.Unix(1700000000, 0).UTC(), step: time.Second},
		IDs:        &fakeIDs{},
	})
	require.NoError(t, err)

	_, err = svc.GetPuzzle(context.Background(), puzzle.Request{})
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, StatusTransport, classify(fmt.Errorf("x: %w", puzzle.ErrTransport)))
	require.Equal(t, StatusExtraction, classify(fmt.Errorf("x: %w", puzzle.ErrExtraction)))
	require.Equal(t, StatusFailed, classify(errors.New("x")))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://site/a/grid.png", resolve("https://site/a/post.html", "grid.png"))
	require.Equal(t, "https://cdn/grid.png", resolve("https://site/a/post.html", "https://cdn/grid.png"))
	require.Equal(t, "grid.png", resolve("", "grid.png"))
}
