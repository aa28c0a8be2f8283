package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/llm"
)

// Client calls a local Ollama server. Embedder and Generator share it so
// both gateways go through one caller and one set of breakers.
type Client struct {
	endpoint   llm.Endpoint
	genModel   string
	embedModel string
	caller     llm.Caller
}

func New(baseURL, genModel, embedModel string, caller llm.Caller) *Client {
	return &Client{
		endpoint:   llm.NewEndpoint("ollama", baseURL, nil),
		genModel:   genModel,
		embedModel: embedModel,
		caller:     caller,
	}
}

func (c *Client) post(ctx context.Context, operation, path string, request, response any) error {
	return c.caller.Do(ctx, "ollama."+operation, func(callCtx context.Context) error {
		return c.endpoint.Post(callCtx, path, operation, request, response)
	})
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embedResponse
	req := embedRequest{Model: e.client.embedModel, Input: texts}
	if err := e.client.post(ctx, "embed", "/api/embed", req, &resp); err != nil {
		return nil, llm.EmbedFailure("ollama embed", err)
	}
	if got := len(resp.Embeddings); got != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "ollama embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), got))
	}
	return resp.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate runs a single non-streaming completion at temperature 0.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	var resp generateResponse
	req := generateRequest{Model: g.client.genModel, Prompt: prompt}
	if err := g.client.post(ctx, "generate", "/api/generate", req, &resp); err != nil {
		return "", llm.GenerateFailure("ollama generate", err)
	}
	return strings.TrimSpace(resp.Response), nil
}
