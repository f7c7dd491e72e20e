package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/web3goals/uni-4-diamond-hands-prototype/internal/errors"
)

// Backend is the contract a generative model integration must satisfy. The
// service depends only on this; provider wire formats stay behind it.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPBackendConfig configures the generative completion endpoint and HTTP
// behavior.
type HTTPBackendConfig struct {
	URL        string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type httpBackend struct {
	c HTTPBackendConfig
}

// NewHTTPBackend builds a Backend speaking a minimal completion protocol:
// POST {model, input} -> {output}.
func NewHTTPBackend(c HTTPBackendConfig) Backend {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &httpBackend{c: c}
}

func (b *httpBackend) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(struct {
		Model string `json:"model"`
		Input string `json:"input"`
	}{
		Model: b.c.Model,
		Input: prompt,
	})
	if err != nil {
		return "", errors.Internal(fmt.Errorf("generate: marshal completion request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.c.URL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Internal(fmt.Errorf("generate: build completion request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if b.c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.c.APIKey)
	}

	resp, err := b.c.HTTPClient.Do(req)
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate: completion call failed"),
			errors.WithCause(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate: read completion response"),
			errors.WithCause(err))
	}
	if resp.StatusCode/100 != 2 {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate: completion returned %d: %s", resp.StatusCode, body))
	}

	var out struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate: malformed completion response"),
			errors.WithCause(err))
	}

	return out.Output, nil
}
