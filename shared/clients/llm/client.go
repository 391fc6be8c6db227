package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"municipal-complaint-service/shared/metricsx"
)

var ErrUnavailable = errors.New("all model providers unavailable")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is one OpenAI-compatible chat completion endpoint. Every call
// carries its own timeout so a dead primary still leaves the fallback
// enough room inside the user-facing latency budget.
type Provider struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	http      *http.Client
	breaker   *circuitBreaker
}

func NewProvider(name string, baseURL string, apiKey string, model string, timeout time.Duration, maxTokens int) *Provider {
	return &Provider{
		name:      name,
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: timeout},
		breaker:   newCircuitBreaker(5, 30*time.Second),
	}
}

func (p *Provider) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

type chatRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if p == nil || p.http == nil {
		return "", errors.New("provider not initialized")
	}
	if p.baseURL == "" {
		return "", errors.New("provider base url is empty")
	}
	if p.breaker.Open() {
		return "", fmt.Errorf("provider %s circuit open", p.name)
	}

	all := make([]Message, 0, len(messages)+1)
	if system != "" {
		all = append(all, Message{Role: RoleSystem, Content: system})
	}
	all = append(all, messages...)

	body, err := json.Marshal(chatRequest{Model: p.model, MaxTokens: p.maxTokens, Messages: all})
	if err != nil {
		return "", err
	}

	ctx, span := otel.Tracer("llm").Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("llm.provider", p.name),
		attribute.String("llm.model", p.model),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		p.breaker.Fail()
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			p.breaker.Fail()
		}
		return "", fmt.Errorf("provider %s returned status %d", p.name, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		p.breaker.Fail()
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("provider %s returned no choices", p.name)
	}
	p.breaker.Success()
	return out.Choices[0].Message.Content, nil
}

// Client calls the primary provider and falls back to the secondary on any
// failure. The fallback is one blocking hop; a second failure surfaces
// ErrUnavailable to the caller.
type Client struct {
	primary  *Provider
	fallback *Provider
}

func NewClient(primary *Provider, fallback *Provider) *Client {
	return &Client{primary: primary, fallback: fallback}
}

func (c *Client) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	if c == nil {
		return "", ErrUnavailable
	}
	var firstErr error
	if c.primary != nil {
		text, err := c.primary.Complete(ctx, system, messages)
		if err == nil {
			return text, nil
		}
		firstErr = err
	}
	if c.fallback != nil {
		text, err := c.fallback.Complete(ctx, system, messages)
		if err == nil {
			metricsx.IncLLMFallback()
			return text, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errors.New("no providers configured")
	}
	return "", fmt.Errorf("%w: %v", ErrUnavailable, firstErr)
}

type circuitBreaker struct {
	mu            sync.Mutex
	failures      int
	openUntil     time.Time
	threshold     int
	resetDuration time.Duration
}

func newCircuitBreaker(threshold int, reset time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetDuration: reset}
}

func (b *circuitBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return false
	}
	if time.Now().After(b.openUntil) {
		b.openUntil = time.Time{}
		b.failures = 0
		return false
	}
	return true
}

func (b *circuitBreaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openUntil = time.Now().Add(b.resetDuration)
	}
}

func (b *circuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}
