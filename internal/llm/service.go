// Package llm talks to an OpenAI-compatible chat-completions server (LM
// Studio by default) and turns event aggregates into narrative summaries.
// Every call fails open: transport and server errors are logged and yield an
// empty completion, never an error.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL       = "http://localhost:1234/v1"
	DefaultModel         = "qwen2.5-7b-instruct"
	DefaultTimeout       = 60 * time.Second
	DefaultHealthTimeout = 5 * time.Second
	DefaultMaxTokens     = 800
)

type Config struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = DefaultHealthTimeout
	}
	return c
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Service is safe for concurrent use. Construct it once and inject it.
type Service struct {
	client *resty.Client
	cfg    Config
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Service {
	cfg = cfg.withDefaults()
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Service{
		client: c,
		cfg:    cfg,
		log:    log.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}
}

func (s *Service) Model() string { return s.cfg.Model }

// GenerateCompletion returns the first choice's content, or "" on any failure.
// There are no retries.
func (s *Service) GenerateCompletion(ctx context.Context, messages []Message, temperature float64, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	var out chatResponse
	start := time.Now()
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&chatRequest{Model: s.cfg.Model, Messages: messages, Temperature: temperature, MaxTokens: maxTokens}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		s.log.Warn().Err(err).Msg("completion request failed")
		return ""
	}
	if resp.IsError() {
		s.log.Warn().Int("status", resp.StatusCode()).Str("body", truncate(resp.String(), 200)).Msg("completion request rejected")
		return ""
	}
	if len(out.Choices) == 0 {
		s.log.Warn().Int("status", resp.StatusCode()).Msg("completion response has no choices")
		return ""
	}
	s.log.Debug().Dur("took", time.Since(start)).Msg("completion received")
	return strings.TrimSpace(out.Choices[0].Message.Content)
}

// CheckHealth reports whether GET /models answers 2xx within the health timeout.
func (s *Service) CheckHealth(ctx context.Context) bool {
	return s.HealthPing(ctx) == nil
}

// HealthPing implements health.HealthPinger.
func (s *Service) HealthPing(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.HealthTimeout)
	defer cancel()
	resp, err := s.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return err
	}
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("llm server status %d", resp.StatusCode())
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
