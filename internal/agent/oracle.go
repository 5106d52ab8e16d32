package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/persona-navigator/internal/llm"
	"github.com/polzovatel/persona-navigator/internal/persona"
	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

// Oracle classifies pages and picks the next navigation action.
// Errors mean the model could not be reached; bad answers never error.
type Oracle interface {
	ClassifyPage(ctx context.Context, shot snapshot.Screenshot) (PageCategory, error)
	Decide(ctx context.Context, shot snapshot.Screenshot, nav NavigationContext) (Decision, error)
}

const (
	classifySystemPrompt = "You are a web page analyzer. Answer with a single word."
	classifyTemperature  = 0
	decideTemperature    = 0.7
)

var classifyPrompt = func() string {
	var b strings.Builder
	b.WriteString("Look at this screenshot of a website and decide which kind of page it is.\n\nAnswer ONLY with one of these categories:\n")
	for _, c := range Categories {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nOne word.")
	return b.String()
}()

type visionOracle struct {
	client llm.Client
	logger zerolog.Logger
}

// NewOracle builds an Oracle on top of a vision model.
func NewOracle(client llm.Client, logger zerolog.Logger) Oracle {
	return &visionOracle{client: client, logger: logger}
}

func (o *visionOracle) ClassifyPage(ctx context.Context, shot snapshot.Screenshot) (PageCategory, error) {
	resp, err := o.client.Generate(ctx, llm.Request{
		System:      classifySystemPrompt,
		Messages:    []llm.Message{llm.UserMessage(classifyPrompt, shot)},
		Temperature: classifyTemperature,
	})
	if err != nil {
		return CategoryOther, fmt.Errorf("classify page: %w", err)
	}
	cat := ParseCategory(resp.Text)
	o.logger.Debug().Str("raw", llmPreview(resp.Text)).Str("category", string(cat)).Msg("page classified")
	return cat, nil
}

func (o *visionOracle) Decide(ctx context.Context, shot snapshot.Screenshot, nav NavigationContext) (Decision, error) {
	resp, err := o.client.Generate(ctx, llm.Request{
		System:      persona.DecisionSystemPrompt(nav.Persona),
		Messages:    []llm.Message{llm.UserMessage(nav.prompt(), shot)},
		Temperature: decideTemperature,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("decide: %w", err)
	}
	dec := ParseDecision(resp.Text)
	if dec.Malformed {
		o.logger.Warn().Str("raw", llmPreview(resp.Text)).Msg("unparseable decision, falling back to DONE")
	}
	return dec, nil
}

func llmPreview(s string) string {
	s = strings.TrimSpace(s)
	if short := truncateRunes(s, 200); short != s {
		return short + "..."
	}
	return s
}
