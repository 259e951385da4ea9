// Package analyst compresses the full analysis packet into a compact JSON
// briefing using the Anthropic API. The call path is rate limited and wrapped
// in a circuit breaker so a flaky upstream cannot stall a batch of runs. A
// response that is not valid JSON becomes a structured error briefing, never
// a failure.
package analyst

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BriefingVersion tags every briefing document, including error briefings.
const BriefingVersion = "1.0"

// maxRawResponse bounds how much of an unparseable reply is kept for debugging.
const maxRawResponse = 2000

const systemPrompt = `You are a physiology coach reviewing one person's
wearable-data analysis: readiness tiers, sleep debt, HRV, strain, circadian
rhythm, and detected multi-day patterns. Compress it into a compact JSON
briefing with keys: briefing_version ("1.0"), headline (one sentence, the
single most important finding), recovery_status, active_alerts (array), and
recommendations (array). Be specific about numbers. Do not invent data that is
not in the input. Respond with JSON only, no prose around it.`

// Config controls the analyst client.
type Config struct {
	Model          string
	MaxTokens      int64
	RequestsPerMin int
	Timeout        time.Duration
}

// DefaultConfig returns analyst defaults.
func DefaultConfig() Config {
	return Config{
		Model:          "claude-sonnet-4-5",
		MaxTokens:      1024,
		RequestsPerMin: 10,
		Timeout:        60 * time.Second,
	}
}

// Analyst produces briefings from analysis packets.
type Analyst struct {
	client  anthropic.Client
	config  Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates an analyst. The API key is read from the environment by the
// underlying client.
func New(config Config, log zerolog.Logger) *Analyst {
	if config.RequestsPerMin <= 0 {
		config.RequestsPerMin = DefaultConfig().RequestsPerMin
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	st := gobreaker.Settings{Name: "anthropic"}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 3
	}

	return &Analyst{
		client:  anthropic.NewClient(),
		config:  config,
		breaker: gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMin)), 1),
		log:     log,
	}
}

// Brief sends a slimmed copy of the packet to the model and returns the
// parsed briefing. A reply that fails to parse as JSON is returned as an
// error briefing with a nil error; only transport and API failures error.
func (a *Analyst) Brief(ctx context.Context, pkt map[string]any) (map[string]any, error) {
	doc, err := json.MarshalIndent(slimPacket(pkt), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := a.breaker.Execute(func() (any, error) {
		return a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(a.config.Model),
			MaxTokens: a.config.MaxTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(string(doc))),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("briefing request failed: %w", err)
	}

	response := result.(*anthropic.Message)
	var raw string
	for _, block := range response.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}

	briefing := parseBriefing(raw)
	if _, bad := briefing["error"]; bad {
		a.log.Warn().Str("model", a.config.Model).Msg("briefing response was not valid JSON")
	} else {
		a.log.Info().
			Str("model", a.config.Model).
			Dur("duration", time.Since(start)).
			Int("chars", len(raw)).
			Msg("briefing generated")
	}
	return briefing, nil
}

// slimPacket shallow-copies the packet with the dense curve-fit grid and the
// per-night session detail removed, keeping the briefing input compact.
func slimPacket(pkt map[string]any) map[string]any {
	slim := make(map[string]any, len(pkt))
	for k, v := range pkt {
		slim[k] = v
	}
	if circ, ok := slim["circadian_profile"].(map[string]any); ok {
		slim["circadian_profile"] = dropKey(circ, "fitted_curve")
	}
	if ss, ok := slim["sleep_sessions"].(map[string]any); ok {
		slim["sleep_sessions"] = dropKey(ss, "nights")
	}
	return slim
}

func dropKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// parseBriefing decodes the model reply, tolerating a markdown code fence
// around the JSON. An undecodable reply becomes an error briefing.
func parseBriefing(raw string) map[string]any {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if strings.TrimSpace(lines[len(lines)-1]) == "```" {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		} else {
			text = strings.Join(lines[1:], "\n")
		}
	}

	var briefing map[string]any
	if err := json.Unmarshal([]byte(text), &briefing); err != nil {
		return ErrorBriefing("model response was not valid JSON", text)
	}
	return briefing
}

// ErrorBriefing builds the structured briefing written when the model call
// fails or returns something unparseable.
func ErrorBriefing(msg, raw string) map[string]any {
	b := map[string]any{
		"briefing_version": BriefingVersion,
		"error":            msg,
	}
	if raw != "" {
		if len(raw) > maxRawResponse {
			raw = raw[:maxRawResponse]
		}
		b["raw_response"] = raw
	}
	return b
}
