/*
Package kind provides the client for the KIND disclosure listing of the
Korea Exchange: the daily disclosure list and per-filing detail pages.
*/
package kind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/shanehull/kindwatch/internal/config"
	"github.com/shanehull/kindwatch/internal/types"
)

const disclosureListPath = "/disclosure/todaydisclosure.do"

var (
	// ErrSourceUnavailable is returned when the listing endpoint cannot
	// be reached or answers with an error status. Fatal to the run.
	ErrSourceUnavailable = errors.New("disclosure source unavailable")

	// ErrSourceEmpty is returned when the source lists no disclosures
	// for the requested date. Non-fatal.
	ErrSourceEmpty = errors.New("no disclosures listed")
)

// Fetcher retrieves the content of a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type httpFetcher struct {
	client    *http.Client
	userAgent string
	apiKey    string
}

func (f *httpFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("received non-OK status code %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body from %s: %w", pageURL, err)
	}

	return string(body), nil
}

// Client fetches listing and detail pages with a polite inter-request
// delay and an identifying client signature.
type Client struct {
	baseURL    string
	marketType string
	fetcher    Fetcher
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewClient builds a Client from source configuration. When
// cfg.UseBrowser is set, pages are rendered through headless Chrome the
// way the listing site expects for script-built tables.
func NewClient(cfg config.SourceConfig, logger *log.Logger) *Client {
	delay := time.Duration(cfg.RequestDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	var fetcher Fetcher
	if cfg.UseBrowser {
		fetcher = NewBrowserFetcher(cfg.UserAgent, time.Duration(cfg.BrowserWaitMS)*time.Millisecond)
	} else {
		fetcher = &httpFetcher{
			client:    &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
			userAgent: cfg.UserAgent,
			apiKey:    cfg.APIKey,
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		marketType: cfg.MarketType,
		fetcher:    fetcher,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		logger:     logger,
	}
}

// NewClientWithFetcher builds a Client around a caller-supplied Fetcher.
func NewClientWithFetcher(baseURL, marketType string, fetcher Fetcher, delay time.Duration, logger *log.Logger) *Client {
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		marketType: marketType,
		fetcher:    fetcher,
		limiter:    rate.NewLimiter(rate.Every(delay), 1),
		logger:     logger,
	}
}

// FetchDailyList retrieves all disclosures listed for the given date.
// Returns ErrSourceUnavailable on transport failure and ErrSourceEmpty
// when the source lists nothing.
func (c *Client) FetchDailyList(ctx context.Context, date time.Time) ([]types.DisclosureListing, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}

	params := url.Values{}
	params.Set("method", "searchTodayDisclosureMain")
	params.Set("marketType", c.marketType)
	params.Set("selDate", date.Format("2006-01-02"))
	listURL := c.baseURL + disclosureListPath + "?" + params.Encode()

	c.logger.Debug().Str("url", listURL).Msg("fetching daily disclosure list")

	body, err := c.fetcher.Fetch(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}

	listings, err := ParseDailyList(body, c.baseURL, date)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}
	if len(listings) == 0 {
		return nil, ErrSourceEmpty
	}

	return listings, nil
}

// FetchDetail retrieves one filing's detail page. Failures are
// per-record and must not abort the run.
func (c *Client) FetchDetail(ctx context.Context, detailURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c.logger.Debug().Str("url", detailURL).Msg("fetching disclosure detail page")

	body, err := c.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch detail page: %w", err)
	}

	return body, nil
}
