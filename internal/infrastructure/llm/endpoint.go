package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Endpoint is one provider's HTTP API root. Every call is a JSON POST that
// decodes a JSON reply; non-2xx replies become *HTTPStatusError.
type Endpoint struct {
	provider string
	baseURL  string
	header   http.Header
	client   *http.Client
}

func NewEndpoint(provider, baseURL string, header http.Header) Endpoint {
	if header == nil {
		header = http.Header{}
	}
	return Endpoint{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		header:   header,
		client:   &http.Client{},
	}
}

func (e Endpoint) Post(ctx context.Context, path, operation string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	for key, values := range e.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", e.provider, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewHTTPStatusError(e.provider, operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", e.provider, operation, err)
	}
	return nil
}
