// Package gdstudio implements platform.Resolver against the GD Studio music
// aggregator API.
package gdstudio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/liuran001/MusicPlayer-Go/player"
	"github.com/liuran001/MusicPlayer-Go/player/platform"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public aggregator endpoint.
const DefaultBaseURL = "https://music-api.gdstudio.xyz/api.php"

const (
	defaultCount   = 20
	defaultPage    = 1
	defaultBitrate = 320
	defaultSize    = 500

	maxBodyBytes = 8 << 20
)

// Options configures a Client. Zero values pick the defaults noted per field.
type Options struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Timeout bounds each HTTP attempt. Zero means no timeout.
	Timeout time.Duration
	// RetryMax is the number of transport retries. Zero disables retries.
	RetryMax int
	// RatePerSecond limits outgoing requests. Zero or less disables the limit.
	RatePerSecond float64
	Burst         int
	Logger        player.Logger
}

// Client provides resilient aggregator calls.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  player.Logger
}

var _ platform.Resolver = (*Client)(nil)

// New creates a client with retry, rate limiting and a circuit breaker.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = player.NopLogger{}
	}
	logger = logger.With("component", "gdstudio")

	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = max(opts.RetryMax, 0)
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn("retrying aggregator request", "types", req.URL.Query().Get("types"), "attempt", attempt)
		}
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	settings := gobreaker.Settings{
		Name:        "gdstudio-api",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// countsAsSuccess keeps cancellations and missing resources from tripping
// the breaker.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, platform.ErrNotFound)
}

func sourceOrDefault(source string) string {
	if source = strings.TrimSpace(source); source == "" {
		return platform.DefaultSource
	}
	return source
}

// Search returns one page of results. count and page default to 20 and 1.
func (c *Client) Search(ctx context.Context, keyword, source string, count, page int) ([]player.Song, error) {
	source = sourceOrDefault(source)
	if count <= 0 {
		count = defaultCount
	}
	if page <= 0 {
		page = defaultPage
	}
	params := url.Values{}
	params.Set("name", keyword)
	params.Set("count", strconv.Itoa(count))
	params.Set("pages", strconv.Itoa(page))

	var songs []player.Song
	if err := c.call(ctx, "search", source, "", params, &songs); err != nil {
		return nil, err
	}
	for i := range songs {
		if songs[i].Source == "" {
			songs[i].Source = source
		}
	}
	return songs, nil
}

// StreamURL resolves a playable URL. bitrate defaults to 320.
func (c *Client) StreamURL(ctx context.Context, id, source string, bitrate int) (*player.StreamInfo, error) {
	if bitrate <= 0 {
		bitrate = defaultBitrate
	}
	params := url.Values{}
	params.Set("id", id)
	params.Set("br", strconv.Itoa(bitrate))

	var info player.StreamInfo
	if err := c.call(ctx, "url", source, id, params, &info); err != nil {
		return nil, err
	}
	if strings.TrimSpace(info.URL) == "" {
		return nil, platform.NewUnavailableError(sourceOrDefault(source), "url", id, "empty url")
	}
	return &info, nil
}

// Cover resolves a cover image URL. size defaults to 500.
func (c *Client) Cover(ctx context.Context, picID, source string, size int) (*player.CoverInfo, error) {
	if size <= 0 {
		size = defaultSize
	}
	params := url.Values{}
	params.Set("id", picID)
	params.Set("size", strconv.Itoa(size))

	var info player.CoverInfo
	if err := c.call(ctx, "pic", source, picID, params, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Lyrics fetches the raw lyric and translation text.
func (c *Client) Lyrics(ctx context.Context, id, source string) (*player.LyricPayload, error) {
	params := url.Values{}
	params.Set("id", id)

	var payload player.LyricPayload
	if err := c.call(ctx, "lyric", source, id, params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) call(ctx context.Context, kind, source, id string, params url.Values, out any) error {
	source = sourceOrDefault(source)
	params.Set("types", kind)
	params.Set("source", source)

	start := time.Now()
	err := c.execute(ctx, func() error {
		return c.fetch(ctx, kind, source, id, params, out)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &platform.PlatformError{Platform: source, Resource: kind, ID: id, Err: platform.ErrCircuitOpen}
		}
		c.logger.Debug("aggregator call failed", "types", kind, "source", source, "id", id, "error", err)
		return err
	}
	c.logger.Debug("aggregator call", "types", kind, "source", source, "id", id, "duration", time.Since(start))
	return nil
}

func (c *Client) execute(ctx context.Context, fn func() error) error {
	if fn == nil {
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return nil, fn()
	})
	return err
}

func (c *Client) fetch(ctx context.Context, kind, source, id string, params url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &platform.PlatformError{Platform: source, Resource: kind, ID: id, Err: fmt.Errorf("%w: %v", platform.ErrUnavailable, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return platform.NewRateLimitedError(source, kind)
	case resp.StatusCode == http.StatusNotFound:
		return platform.NewNotFoundError(source, kind, id)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &platform.PlatformError{Platform: source, Resource: kind, ID: id, Err: fmt.Errorf("%w: status %d", platform.ErrUnavailable, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", kind, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", kind, err)
	}
	return nil
}
