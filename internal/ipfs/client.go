package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/telemetry"
)

// Scheme prefixes every content URI returned by Publish.
const Scheme = "ipfs://"

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 100 * time.Millisecond
)

type Config struct {
	// PinURL is the pinning endpoint of the content store provider.
	PinURL string
	// Gateway resolves content addresses over HTTP, e.g. "https://gateway.example/ipfs/".
	Gateway string
	// JWT authenticates pinning requests.
	JWT string

	HTTPClient *http.Client
	// Redis, when set, backs a read-through cache of fetched content.
	// Content is immutable, so any TTL is safe.
	Redis    redis.UniversalClient
	CacheTTL time.Duration
}

// Client uploads and fetches immutable JSON blobs by content address.
type Client struct {
	c    Config
	http *http.Client
}

func NewClient(c Config) *Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{c: c, http: c.HTTPClient}
}

// Publish uploads data and returns its content URI. Identical content always
// yields the identical URI, so republishing is a no-op on the store side and
// the operation is safe to repeat after a failure.
func (c *Client) Publish(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.c.PinURL, bytes.NewReader(data))
	if err != nil {
		return "", errors.Internal(fmt.Errorf("ipfs: build publish request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.c.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.c.JWT)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: publish failed"),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: read publish response"),
			errors.WithCause(err))
	}
	if resp.StatusCode/100 != 2 {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: publish rejected: status=%d body=%s", resp.StatusCode, body))
	}

	var pinned struct {
		CID string `json:"cid"`
	}
	if err := json.Unmarshal(body, &pinned); err != nil || pinned.CID == "" {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: publish response missing cid: %s", body),
			errors.WithCause(err))
	}

	return Scheme + pinned.CID, nil
}

// Fetch resolves a content URI through the gateway. Reads are idempotent, so
// transient failures are retried with bounded backoff. Fetched content is
// cached when a redis client is configured.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("ipfs: uri must start with %q: %s", Scheme, uri))
	}

	if c.c.Redis != nil {
		if data, err := c.c.Redis.Get(ctx, cacheKey(uri)).Bytes(); err == nil {
			telemetry.ContentCacheHits.Inc()
			return data, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < defaultMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.New(errors.CodeUnavailable,
					errors.WithMessagef("ipfs: fetch canceled: %s", uri),
					errors.WithCause(ctx.Err()))
			case <-time.After(defaultRetryBase << (attempt - 1)):
			}
		}

		data, retryable, err := c.fetchOnce(ctx, uri)
		if err == nil {
			if c.c.Redis != nil {
				// Best effort: a cache write failure must not fail the read.
				_ = c.c.Redis.Set(ctx, cacheKey(uri), data, c.c.CacheTTL).Err()
			}
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, uri string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayURL(uri), nil)
	if err != nil {
		return nil, false, errors.Internal(fmt.Errorf("ipfs: build fetch request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: fetch failed: %s", uri),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, errors.New(errors.CodeNotFound,
			errors.WithMessagef("ipfs: content not found: %s", uri))
	case resp.StatusCode/100 == 5:
		return nil, true, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: gateway returned %d for %s", resp.StatusCode, uri))
	case resp.StatusCode/100 != 2:
		return nil, false, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: gateway returned %d for %s", resp.StatusCode, uri))
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("ipfs: read content: %s", uri),
			errors.WithCause(err))
	}
	return data, false, nil
}

// GatewayURL rewrites a content URI to its HTTP gateway form.
func (c *Client) GatewayURL(uri string) string {
	return strings.Replace(uri, Scheme, c.c.Gateway, 1)
}

func cacheKey(uri string) string {
	return "ipfs:content:" + strings.TrimPrefix(uri, Scheme)
}

// IsNotFound reports whether err is a missing-content fetch error.
func IsNotFound(err error) bool {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Code == errors.CodeNotFound
	}
	return false
}
