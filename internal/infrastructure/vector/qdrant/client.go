package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/resilience"
)

const DefaultCollection = "automotive_reports"

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	// ensuredVectorSize is the vector size the collection was last created
	// with; zero means it must be (re)created before the next upsert.
	ensureMu          sync.Mutex
	ensuredVectorSize int
}

// New returns a client for one collection. A nil executor runs every call once.
func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type statusError struct {
	operation  string
	statusCode int
	status     string
	body       string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.operation, e.status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.operation, e.status, e.body)
}

// Reset drops the collection; the next Insert recreates it with the vector
// size of the new passages.
func (c *Client) Reset(ctx context.Context) error {
	err := c.do(ctx, "reset", http.MethodDelete, c.collectionURL(""), nil, nil)
	if err != nil && !hasStatus(err, http.StatusNotFound) {
		return err
	}
	c.ensureMu.Lock()
	c.ensuredVectorSize = 0
	c.ensureMu.Unlock()
	return nil
}

// pointPayload is the provenance stored next to every vector.
type pointPayload struct {
	Company    string `json:"company"`
	Year       int    `json:"year"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

type scoredPoint struct {
	ID      any          `json:"id"`
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
}

func (c *Client) Insert(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	if err := c.ensureCollection(ctx, len(passages[0].Embedding)); err != nil {
		return err
	}

	points := make([]point, len(passages))
	for i, p := range passages {
		points[i] = point{
			ID:     p.ID,
			Vector: p.Embedding,
			Payload: pointPayload{
				Company:    string(p.Provenance.Company),
				Year:       p.Provenance.Year,
				Source:     p.Provenance.Source,
				ChunkIndex: p.Provenance.ChunkIndex,
				Page:       p.Provenance.Page,
				Text:       p.Text,
			},
		}
	}
	return c.do(ctx, "upsert", http.MethodPut, c.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (c *Client) Query(ctx context.Context, embedding []float32, topK int, filter domain.Filter) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"vector":       embedding,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := c.do(ctx, "search", http.MethodPost, c.collectionURL("/points/search"), reqBody, &resp); err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]domain.ScoredPassage, len(resp.Result))
	for i, r := range resp.Result {
		out[i] = domain.ScoredPassage{
			Passage: domain.Passage{
				ID:   fmt.Sprint(r.ID),
				Text: r.Payload.Text,
				Provenance: domain.Provenance{
					Company:    domain.Company(r.Payload.Company),
					Year:       r.Payload.Year,
					Source:     r.Payload.Source,
					ChunkIndex: r.Payload.ChunkIndex,
					Page:       r.Payload.Page,
				},
			},
			Score: r.Score,
		}
	}
	return out, nil
}

// Count reports zero for a collection that does not exist yet.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := c.do(ctx, "count", http.MethodPost, c.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	switch {
	case hasStatus(err, http.StatusNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return resp.Result.Count, nil
}

func buildFilter(filter domain.Filter) map[string]any {
	var must []map[string]any
	if len(filter.Companies) > 0 {
		values := make([]string, len(filter.Companies))
		for i, company := range filter.Companies {
			values[i] = string(company)
		}
		must = append(must, matchAny("company", values))
	}
	if len(filter.Years) > 0 {
		must = append(must, matchAny("year", filter.Years))
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func matchAny(key string, values any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"any": values}}
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	ready := c.ensuredVectorSize != 0 && c.ensuredVectorSize == vectorSize
	c.ensureMu.Unlock()
	if ready {
		return nil
	}

	reqBody := map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": "Cosine"},
	}
	err := c.do(ctx, "ensure collection", http.MethodPut, c.collectionURL(""), reqBody, nil)
	// 409: already created by an earlier run.
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return err
	}

	c.ensureMu.Lock()
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) collectionURL(suffix string) string {
	return c.baseURL + "/collections/" + url.PathEscape(c.collection) + suffix
}

func (c *Client) do(ctx context.Context, operation, method, target string, payload any, out any) error {
	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, operation, method, target, payload, out)
	}
	if c.executor == nil {
		return call(ctx)
	}
	return c.executor.Execute(ctx, "qdrant."+operation, call, classify)
}

func (c *Client) roundTrip(ctx context.Context, operation, method, target string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			operation:  operation,
			statusCode: resp.StatusCode,
			status:     resp.Status,
			body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func hasStatus(err error, code int) bool {
	var statusErr *statusError
	return errors.As(err, &statusErr) && statusErr.statusCode == code
}

func classify(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.statusCode == http.StatusTooManyRequests || statusErr.statusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}
