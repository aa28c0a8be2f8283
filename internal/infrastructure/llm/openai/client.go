package openai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/llm"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Client talks to any OpenAI-compatible endpoint for embeddings and chat
// completions.
type Client struct {
	endpoint   llm.Endpoint
	genModel   string
	embedModel string
	caller     llm.Caller
}

func New(baseURL, apiKey, genModel, embedModel string, caller llm.Caller) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if genModel == "" {
		genModel = "gpt-4o-mini"
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	return &Client{
		endpoint:   llm.NewEndpoint("openai", baseURL, header),
		genModel:   genModel,
		embedModel: embedModel,
		caller:     caller,
	}
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

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := e.client.caller.Do(ctx, "openai.embed", func(callCtx context.Context) error {
		return e.client.endpoint.Post(callCtx, "/embeddings", "embed", request, &response)
	})
	if err != nil {
		return nil, llm.EmbedFailure("openai embed", err)
	}
	if len(response.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "openai embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data)))
	}

	sort.SliceStable(response.Data, func(i, j int) bool {
		return response.Data[i].Index < response.Data[j].Index
	})
	out := make([][]float32, len(response.Data))
	for i, item := range response.Data {
		out[i] = item.Embedding
	}
	return out, nil
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

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":       g.client.genModel,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	err := g.client.caller.Do(ctx, "openai.generate", func(callCtx context.Context) error {
		return g.client.endpoint.Post(callCtx, "/chat/completions", "generate", request, &response)
	})
	if err != nil {
		return "", llm.GenerateFailure("openai generate", err)
	}
	if len(response.Choices) == 0 {
		return "", domain.WrapError(domain.ErrGenerationUnavailable, "openai generate", fmt.Errorf("empty choices"))
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}
