package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
	"github.com/kailas-cloud/lessonsearch/internal/metrics"
	"github.com/kailas-cloud/lessonsearch/internal/resilience"
)

const parseSystemPrompt = `You extract search constraints from lesson-marketplace queries.
Respond with a single JSON object, no prose, using exactly these keys
(omit keys you cannot fill):
{"service_query": string, "location_text": string, "max_price": number,
 "price_intent": "budget", "date": "YYYY-MM-DD", "date_tag": "weekend",
 "time_after": 0-23, "time_before": 0-23, "time_window": "morning|afternoon|evening",
 "audience": "kids|adults", "skill_level": "beginner|advanced",
 "urgency": "high", "lesson_type": "online|in_person"}`

const locationSystemPrompt = `You map a misspelled or colloquial location phrase to known
neighborhood names. Respond with a single JSON object:
{"candidates": ["Name", ...]} with at most 5 plausible official neighborhood names.
Return {"candidates": []} if the phrase does not look like a place at all.`

// LLM is the chat-completion provider for fallback query parsing and
// location candidate generation.
type LLM struct {
	client  *openai.Client
	model   string
	breaker *resilience.Executor
	logger  *zap.Logger
}

// LLMConfig holds the LLM provider settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Breaker *resilience.Executor
	Logger  *zap.Logger
}

// NewLLM creates an OpenAI-compatible chat-completion provider.
func NewLLM(cfg *LLMConfig) *LLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &LLM{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		breaker: cfg.Breaker,
		logger:  cfg.Logger,
	}
}

// llmParsePayload is the JSON shape the parse prompt requests.
type llmParsePayload struct {
	ServiceQuery string   `json:"service_query"`
	LocationText string   `json:"location_text"`
	MaxPrice     *float64 `json:"max_price"`
	PriceIntent  string   `json:"price_intent"`
	Date         string   `json:"date"`
	DateTag      string   `json:"date_tag"`
	TimeAfter    *int     `json:"time_after"`
	TimeBefore   *int     `json:"time_before"`
	TimeWindow   string   `json:"time_window"`
	Audience     string   `json:"audience"`
	SkillLevel   string   `json:"skill_level"`
	Urgency      string   `json:"urgency"`
	LessonType   string   `json:"lesson_type"`
}

// Parse reparses a raw query with the LLM. The caller bounds the call via ctx.
func (l *LLM) Parse(ctx context.Context, rawQuery string) (domain.ParsedQuery, error) {
	content, err := l.complete(ctx, "parse", parseSystemPrompt, rawQuery)
	if err != nil {
		return domain.ParsedQuery{}, err
	}

	var payload llmParsePayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return domain.ParsedQuery{}, fmt.Errorf("malformed llm parse payload: %w", domain.ErrLLMProviderError)
	}

	pq := domain.ParsedQuery{
		RawQuery:     rawQuery,
		ServiceQuery: strings.TrimSpace(payload.ServiceQuery),
		LocationText: strings.TrimSpace(payload.LocationText),
		LocationType: domain.LocationNone,
		MaxPrice:     payload.MaxPrice,
		PriceIntent:  domain.PriceIntent(payload.PriceIntent),
		DateTag:      domain.DateTag(payload.DateTag),
		TimeAfter:    clampHour(payload.TimeAfter),
		TimeBefore:   clampHour(payload.TimeBefore),
		TimeWindow:   domain.TimeWindow(payload.TimeWindow),
		Audience:     domain.Audience(payload.Audience),
		SkillLevel:   domain.SkillLevel(payload.SkillLevel),
		Urgency:      domain.Urgency(payload.Urgency),
		LessonType:   domain.LessonType(payload.LessonType),
		Mode:         domain.ParsingModeLLM,
	}
	if pq.LocationText != "" {
		pq.LocationType = domain.LocationNeighborhood
	}
	if payload.Date != "" {
		if d, err := time.Parse("2006-01-02", payload.Date); err == nil {
			pq.Date = &d
		}
	}
	return pq, nil
}

// ResolveCandidates asks the LLM for plausible region names for a phrase
// that deterministic tiers could not resolve.
func (l *LLM) ResolveCandidates(ctx context.Context, phrase string) ([]string, error) {
	content, err := l.complete(ctx, "location", locationSystemPrompt, phrase)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Candidates []string `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("malformed llm location payload: %w", domain.ErrLLMProviderError)
	}

	out := payload.Candidates[:0]
	for _, c := range payload.Candidates {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (l *LLM) complete(ctx context.Context, operation, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	start := time.Now()

	var resp openai.ChatCompletionResponse
	err := l.breaker.Execute(ctx, "llm_"+operation, func(ctx context.Context) error {
		var callErr error
		resp, callErr = l.client.CreateChatCompletion(ctx, req)
		return callErr
	})

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", classifyLLMError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(operation, "error").Inc()
		return "", fmt.Errorf("empty llm response: %w", domain.ErrLLMProviderError)
	}

	metrics.LLMRequestsTotal.WithLabelValues(operation, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())

	return resp.Choices[0].Message.Content, nil
}

func classifyLLMError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("llm request: %w", domain.ErrLLMTimeout)
	}
	if resilience.IsOpen(err) {
		return fmt.Errorf("llm circuit open: %w", domain.ErrLLMProviderError)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("llm API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrLLMProviderError)
	}
	return fmt.Errorf("llm request failed: %w", domain.ErrLLMProviderError)
}

func clampHour(h *int) *int {
	if h == nil || *h < 0 || *h > 23 {
		return nil
	}
	return h
}
