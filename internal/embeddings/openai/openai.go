// Package openai embeds text through an OpenAI-compatible /embeddings
// endpoint (LM Studio, vLLM, llama.cpp server, OpenAI itself).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Provider struct {
	client *resty.Client
	model  string
}

// New creates a provider. apiKey may be empty for local servers.
func New(baseURL, model, apiKey string) *Provider {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(time.Minute)
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Provider{client: c, model: model}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	var out embedResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&embedRequest{Model: p.model, Input: text}).
		SetResult(&out).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("embeddings status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response has no data")
	}
	return out.Data[0].Embedding, nil
}

// HealthPing implements health.HealthPinger by listing models.
func (p *Provider) HealthPing(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("models status %d", resp.StatusCode())
	}
	return nil
}
