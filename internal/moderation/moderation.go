// Package moderation classifies text into flagged (soft) and blocked (hard)
// policy violations.
package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Verdict is the result of one classification. An empty string means no
// category matched in that tier; otherwise categories render as
// "(category) " concatenated.
type Verdict struct {
	Flagged string
	Blocked string
}

// Gate classifies a text span on behalf of a user. Classifier failures are
// returned to the caller, never swallowed.
type Gate interface {
	Classify(ctx context.Context, text, user string) (Verdict, error)
}

// Thresholds maps a category name (as the classifier spells it, e.g.
// "violence/graphic") to the score above which it matches.
type Thresholds map[string]float64

// DefaultBlocked are the hard-violation thresholds.
func DefaultBlocked() Thresholds {
	return Thresholds{
		"hate":             0.5,
		"hate/threatening": 0.1,
		"self-harm":        0.8,
		"sexual":           0.5,
		"sexual/minors":    0.5,
		"violence":         0.7,
		"violence/graphic": 0.8,
	}
}

// DefaultFlagged are the soft-violation thresholds.
func DefaultFlagged() Thresholds {
	return Thresholds{
		"hate":             0.4,
		"hate/threatening": 0.05,
		"self-harm":        0.8,
		"sexual":           0.3,
		"sexual/minors":    0.1,
		"violence":         0.1,
		"violence/graphic": 0.1,
	}
}

// limit returns the threshold for category; unknown categories never match.
func (t Thresholds) limit(category string) float64 {
	if v, ok := t[category]; ok {
		return v
	}
	return 1.0
}

// Score is one category score in classifier order.
type Score struct {
	Category string
	Value    float64
}

// Evaluate applies the two threshold tables to scores. Scores are visited
// in order; the first category over its blocked threshold is recorded and
// stops the scan, otherwise every category over its flagged threshold is
// collected.
func Evaluate(scores []Score, blocked, flagged Thresholds) Verdict {
	var v Verdict
	for _, s := range scores {
		if s.Value > blocked.limit(s.Category) {
			v.Blocked += fmt.Sprintf("(%s) ", s.Category)
			break
		}
		if s.Value > flagged.limit(s.Category) {
			v.Flagged += fmt.Sprintf("(%s) ", s.Category)
		}
	}
	return v
}

// OpenAIGate classifies with the OpenAI moderations endpoint.
type OpenAIGate struct {
	client  openai.Client
	model   string
	blocked Thresholds
	flagged Thresholds
	logger  *zap.Logger
}

// NewOpenAIGate creates a gate. Nil threshold tables take the defaults.
func NewOpenAIGate(apiKey, baseURL, model string, blocked, flagged Thresholds, logger *zap.Logger, extra ...option.RequestOption) *OpenAIGate {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	if model == "" {
		model = openai.ModerationModelOmniModerationLatest
	}
	if blocked == nil {
		blocked = DefaultBlocked()
	}
	if flagged == nil {
		flagged = DefaultFlagged()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGate{
		client:  openai.NewClient(opts...),
		model:   model,
		blocked: blocked,
		flagged: flagged,
		logger:  logger,
	}
}

func (g *OpenAIGate) Classify(ctx context.Context, text, user string) (Verdict, error) {
	resp, err := g.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: g.model,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation request: %w", err)
	}
	if len(resp.Results) == 0 {
		return Verdict{}, nil
	}

	scores := parseScores(resp.Results[0].CategoryScores.RawJSON())
	v := Evaluate(scores, g.blocked, g.flagged)
	if v.Blocked != "" || v.Flagged != "" {
		g.logger.Info("moderation match",
			zap.String("user", user),
			zap.String("blocked", strings.TrimSpace(v.Blocked)),
			zap.String("flagged", strings.TrimSpace(v.Flagged)))
	}
	return v, nil
}

// parseScores keeps the classifier's key order, which the typed SDK struct
// would lose.
func parseScores(raw string) []Score {
	var scores []Score
	gjson.Parse(raw).ForEach(func(key, value gjson.Result) bool {
		scores = append(scores, Score{Category: key.String(), Value: value.Float()})
		return true
	})
	return scores
}
