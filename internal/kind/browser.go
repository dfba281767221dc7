package kind

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages through headless Chrome. The KIND
// listing builds its table with scripts, so the plain HTTP response can
// be an empty shell; rendering first avoids that.
type BrowserFetcher struct {
	userAgent string
	wait      time.Duration
}

// NewBrowserFetcher creates a fetcher that waits the given duration
// after page load for script-built content to settle.
func NewBrowserFetcher(userAgent string, wait time.Duration) *BrowserFetcher {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &BrowserFetcher{userAgent: userAgent, wait: wait}
}

// Fetch navigates to pageURL and returns the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(f.userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var rendered string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.Sleep(f.wait),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", pageURL, err)
	}

	return rendered, nil
}
