package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"artcache/config"
)

// HTTPGenerator talks to a hosted image generator over a minimal JSON
// contract: POST {prompt,width,height,style}, image bytes back.
type HTTPGenerator struct {
	URL    string
	APIKey string
	client http.Client
}

func NewHTTPGenerator() *HTTPGenerator {
	return &HTTPGenerator{
		URL:    config.GENERATOR_URL,
		APIKey: config.GENERATOR_API_KEY,
		client: http.Client{
			Timeout: time.Duration(config.GENERATE_TIMEOUT_SECONDS) * time.Second,
		},
	}
}

type generateBody struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Style  string `json:"style,omitempty"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) ([]byte, error) {
	if req.Prompt == "" || req.Width <= 0 || req.Height <= 0 {
		return nil, ErrInvalidInput
	}
	body, _ := json.Marshal(generateBody{
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
		Style:  req.Style,
	})
	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	httpReq.Header.Set("content-type", "application/json")
	if g.APIKey != "" {
		httpReq.Header.Set("authorization", "Bearer "+g.APIKey)
	}
	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w after %s", ErrTimeout, time.Since(start).Round(time.Second))
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired:
		return nil, ErrQuotaExceeded
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrInvalidInput
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("generator returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidInput, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(config.MAX_IMAGE_BYTES)+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrCorruptArtifact
	}
	if len(data) > config.MAX_IMAGE_BYTES {
		return nil, fmt.Errorf("%w: response over %d bytes", ErrCorruptArtifact, config.MAX_IMAGE_BYTES)
	}
	log.Printf("Generated %d bytes for %q in %s", len(data), req.Prompt, time.Since(start).Round(time.Millisecond))
	return data, nil
}
