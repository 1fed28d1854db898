// Package llm turns computed insight reports into short natural-language
// narrations via a hosted model. The model only ever sees the aggregate
// numbers, never raw transactions.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"fintel/internal/core"
)

// Narration is the structured summary returned by the model.
type Narration struct {
	Headline  string   `json:"headline"`
	Summary   string   `json:"summary"`
	Bullets   []string `json:"bullets"`
	Actions   []string `json:"actions"`
	RiskLevel string   `json:"risk_level"`
}

// Narrator produces a narration for a report. A (nil, nil) return means
// narration is currently unavailable (cooldown, disabled) and the report
// should be served without one.
type Narrator interface {
	Summarize(ctx context.Context, ins *core.Insights) (*Narration, error)
}

const systemPrompt = "You are an AI financial advisor inside an expense tracker.\n" +
	"Use ONLY the numbers provided.\n" +
	"Do NOT invent data.\n" +
	"Focus on overspending, rent burden, discretionary spend, and spikes.\n" +
	"Return STRICT JSON (no markdown, no extra text) with keys:\n" +
	"headline, summary, bullets (array), actions (array), risk_level (low|medium|high).\n"

// GeminiNarrator calls the Gemini API with a soft per-minute request
// window and a cooldown after rate-limit responses, so a burst of report
// requests cannot exhaust the provider quota.
type GeminiNarrator struct {
	model   string
	limiter *requestWindow
}

type Options struct {
	Model  string
	MaxRPM int
}

func NewGeminiNarrator(opts Options) *GeminiNarrator {
	maxRPM := opts.MaxRPM
	if maxRPM < 1 {
		maxRPM = 1
	}
	return &GeminiNarrator{
		model:   opts.Model,
		limiter: newRequestWindow(maxRPM),
	}
}

// Summarize sends the report to the model and parses its strict-JSON
// reply. Rate-limit errors start a cooldown during which Summarize
// returns (nil, nil) instead of failing the report.
func (n *GeminiNarrator) Summarize(ctx context.Context, ins *core.Insights) (*Narration, error) {
	if n.limiter.inCooldown() {
		slog.DebugContext(ctx, "Narrator in cooldown, skipping summary", "period_key", ins.PeriodKey)
		return nil, nil
	}
	if err := n.limiter.wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]any{
		"task":     "monthly_or_weekly_summary",
		"insights": ins,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal insights: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: systemPrompt},
				{Text: string(payload)},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, n.model, contents, nil)
	if err != nil {
		n.noteError(ctx, err)
		return nil, nil
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	narration, err := extractNarration(text)
	if err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}
	return narration, nil
}

// noteError inspects provider failures and arms the cooldown when the
// failure is quota-shaped. Other errors are logged and swallowed: a
// missing narration must never fail the report.
func (n *GeminiNarrator) noteError(ctx context.Context, err error) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted"):
		n.limiter.setCooldown(60 * time.Second)
		slog.WarnContext(ctx, "Narrator rate limited, cooling down", "cooldown", "60s")
	case strings.Contains(msg, "data policy"):
		n.limiter.setCooldown(10 * time.Minute)
		slog.WarnContext(ctx, "Narrator refused by data policy, cooling down", "cooldown", "10m")
	default:
		slog.ErrorContext(ctx, "Narration generation failed", "error", err)
	}
}

// extractNarration parses the model output, tolerating markdown fences
// and surrounding prose by falling back to the first {...} object.
func extractNarration(text string) (*Narration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("empty text")
	}

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	var n Narration
	if err := json.Unmarshal([]byte(s), &n); err == nil {
		return &n, nil
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &n); err != nil {
		return nil, err
	}
	return &n, nil
}
