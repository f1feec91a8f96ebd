// Package headless renders puzzle pages in headless Chrome. It is the last
// escalation for pages the library and command fetchers cannot decode; its
// output is a rendered DOM, never the original bytes, so image downloads
// must not use it.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/crossword-scraper/internal/puzzle"
)

const (
	defaultNavTimeout    = 15 * time.Second
	defaultReadySelector = "body"
)

// Config controls the headless renderer.
type Config struct {
	// MaxParallel caps concurrent renders; 0 means no cap.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	Headers           http.Header
	// ReadySelector is the element that must be present before the DOM is
	// captured. Defaults to "body".
	ReadySelector string
}

// Fetcher implements puzzle.Fetcher by rendering pages with chromedp.
type Fetcher struct {
	cfg         Config
	slots       *semaphore.Weighted
	browser     context.Context
	stopBrowser context.CancelFunc
}

// NewChromedp prepares a renderer. Chrome starts on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.ReadySelector == "" {
		cfg.ReadySelector = defaultReadySelector
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	f.browser, f.stopBrowser = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	if f.stopBrowser != nil {
		f.stopBrowser()
	}
}

// Fetch renders url and returns the page's outer HTML. Status, headers and
// final URL come from the main document response when Chrome reports one.
func (f *Fetcher) Fetch(ctx context.Context, url string) (puzzle.FetchResult, error) {
	if err := f.acquire(ctx); err != nil {
		return puzzle.FetchResult{}, err
	}
	defer f.release()

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, f.navTimeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	var html, location string
	if err := chromedp.Run(tab,
		f.prepareTab(),
		chromedp.Navigate(url),
		chromedp.WaitReady(f.readySelector(), chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return puzzle.FetchResult{}, fmt.Errorf("render %s: %w", url, err)
	}

	res := doc.result(url, location)
	res.Body = []byte(html)
	res.Duration = time.Since(start)
	return res, nil
}

func (f *Fetcher) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("user agent override: %w", err)
			}
		}
		if extra := toNetworkHeaders(f.cfg.Headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	if err := f.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for a headless slot: %w", err)
	}
	return nil
}

func (f *Fetcher) release() {
	if f.slots != nil {
		f.slots.Release(1)
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (f *Fetcher) readySelector() string {
	if f.cfg.ReadySelector != "" {
		return f.cfg.ReadySelector
	}
	return defaultReadySelector
}

// documentResponse records the last main-document response seen in a tab.
// Redirects replace earlier records.
type documentResponse struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := flattenHeaders(resp.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = true
	d.status = int(resp.Response.Status)
	d.headers = headers
	d.url = resp.Response.URL
}

// result builds a FetchResult without a body. Missing fields fall back to
// the navigated location, then the requested URL, and 200.
func (d *documentResponse) result(requestURL, location string) puzzle.FetchResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := puzzle.FetchResult{URL: requestURL, StatusCode: http.StatusOK, Headers: http.Header{}}
	if location != "" {
		res.URL = location
	}
	if !d.seen {
		return res
	}
	if d.url != "" {
		res.URL = d.url
	}
	if d.status != 0 {
		res.StatusCode = d.status
	}
	if d.headers != nil {
		res.Headers = d.headers.Clone()
	}
	return res
}

func flattenHeaders(in network.Headers) http.Header {
	out := http.Header{}
	for key, value := range in {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []any:
			for _, entry := range v {
				out.Add(key, fmt.Sprint(entry))
			}
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}

func toNetworkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
