// Package narrative turns a ranked insight feed into a short human-readable
// summary via an OpenAI-compatible chat API (Groq works through BaseURL).
// When the model is unavailable the summarizer falls back to a deterministic
// template so the insight response never fails on narrative generation.
package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bluerp/bluecore/internal/entities"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an ERP analyst. Summarize the provided business insights " +
	"in at most three sentences, plain language, no markdown."

// ChatClient is the slice of the OpenAI client the summarizer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the summarizer.
type Config struct {
	Enabled bool
	APIKey  string
	BaseURL string // OpenAI-compatible endpoint, e.g. https://api.groq.com/openai/v1
	Model   string
}

// Summarizer produces narrative summaries of insight feeds.
type Summarizer struct {
	client ChatClient
	model  string
	logger *slog.Logger
}

// NewSummarizer builds a summarizer from config. With Enabled false or no
// API key it runs in template-only mode.
func NewSummarizer(cfg Config, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Summarizer{model: cfg.Model, logger: logger}
	if s.model == "" {
		s.model = "llama-3.1-8b-instant"
	}
	if !cfg.Enabled || cfg.APIKey == "" {
		logger.Info("narrative model disabled, using template summaries")
		return s
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

// NewSummarizerWithClient wires an explicit client, used by tests.
func NewSummarizerWithClient(client ChatClient, model string, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{client: client, model: model, logger: logger}
}

// Summarize renders a narrative for the feed. The returned bool reports
// degraded mode: true when the template fallback produced the text.
func (s *Summarizer) Summarize(ctx context.Context, insights []*entities.Insight) (string, bool) {
	if len(insights) == 0 {
		return "No insights matched this query.", true
	}
	if s.client == nil {
		return templateSummary(insights), true
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: promptFor(insights)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		s.logger.Warn("narrative model call failed, falling back to template", "error", err)
		return templateSummary(insights), true
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		s.logger.Warn("narrative model returned no content, falling back to template")
		return templateSummary(insights), true
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), false
}

func promptFor(insights []*entities.Insight) string {
	var b strings.Builder
	b.WriteString("Insights, strongest first:\n")
	for _, ins := range insights {
		fmt.Fprintf(&b, "- %s on %s, score %.2f", ins.Kind, ins.SubjectResourceID, ins.Score)
		if ins.Degraded {
			b.WriteString(" (degraded estimate)")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// templateSummary is the deterministic fallback: same feed, same text.
func templateSummary(insights []*entities.Insight) string {
	counts := map[entities.InsightKind]int{}
	for _, ins := range insights {
		counts[ins.Kind]++
	}
	parts := make([]string, 0, 3)
	for _, kind := range []entities.InsightKind{entities.InsightSimilarity, entities.InsightForecast, entities.InsightAnomaly} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, label(kind, n)))
		}
	}
	top := insights[0]
	return fmt.Sprintf("Found %s. Strongest signal: %s insight on %s (score %.2f).",
		strings.Join(parts, ", "), top.Kind, top.SubjectResourceID, top.Score)
}

func label(kind entities.InsightKind, n int) string {
	var base string
	switch kind {
	case entities.InsightSimilarity:
		base = "similarity match"
	case entities.InsightForecast:
		base = "forecast"
	default:
		base = "anomaly report"
	}
	if n == 1 {
		return base
	}
	if base == "similarity match" {
		return "similarity matches"
	}
	return base + "s"
}
