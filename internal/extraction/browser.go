// Package extraction fetches venue pages and turns them into validated dish
// records. Venues are processed strictly sequentially within one browser
// session, with session state cleared before every fetch so content can
// never leak between consecutive venues.
package extraction

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/brandreach/menuscout/internal/config"
)

// Browser is the page-fetching contract. Implementations are opaque to the
// agent; content comes back as rendered HTML.
type Browser interface {
	// Open navigates to the URL and returns the rendered page content.
	Open(ctx context.Context, url string) (string, error)
	// ClearState wipes session-level state (cache, cookies).
	ClearState(ctx context.Context) error
	// Close tears the session down.
	Close() error
}

// ChromeBrowser drives a headless Chrome session via chromedp.
type ChromeBrowser struct {
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	navTimeout  time.Duration
}

// NewChromeBrowser starts one headless session.
func NewChromeBrowser(cfg config.ExtractionConfig) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so startup failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, eris.Wrap(err, "extraction: start browser")
	}

	timeout := time.Duration(cfg.NavTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeBrowser{
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		navTimeout:  timeout,
	}, nil
}

// Open navigates to the URL and returns the rendered HTML.
func (b *ChromeBrowser) Open(ctx context.Context, url string) (string, error) {
	navCtx, cancel := context.WithTimeout(b.browserCtx, b.navTimeout)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-navCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", eris.Wrapf(err, "extraction: navigate %s", url)
	}
	return html, nil
}

// ClearState wipes browser cache and cookies.
func (b *ChromeBrowser) ClearState(ctx context.Context) error {
	err := chromedp.Run(b.browserCtx,
		network.ClearBrowserCache(),
		network.ClearBrowserCookies(),
	)
	return eris.Wrap(err, "extraction: clear browser state")
}

// Close tears the session down.
func (b *ChromeBrowser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}
