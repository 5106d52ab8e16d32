package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/llm"
)

// InputKind tells a navigation command from a question for the persona.
type InputKind string

const (
	InputNavigate InputKind = "NAVIGATE"
	InputQuestion InputKind = "QUESTION"

	guideMaxTokens = 256
)

// Call is one translated tool invocation.
type Call struct {
	Name  string
	Input map[string]any
}

// Guide turns free-form operator commands into toolbox calls.
type Guide struct {
	client llm.Client
	tools  Toolbox
	logger zerolog.Logger
}

func NewGuide(client llm.Client, tools Toolbox, logger zerolog.Logger) *Guide {
	return &Guide{client: client, tools: tools, logger: logger}
}

// Classify labels operator input. Anything the model does not answer in the
// KIND|text form is a question.
func (g *Guide) Classify(ctx context.Context, input string) (InputKind, string, error) {
	resp, err := g.client.Generate(ctx, llm.Request{
		Messages:  []llm.Message{llm.UserMessage(classifyInputPrompt(input))},
		MaxTokens: guideMaxTokens,
	})
	if err != nil {
		return "", "", fmt.Errorf("classify input: %w", err)
	}
	kind, content, ok := strings.Cut(strings.TrimSpace(resp.Text), "|")
	if !ok {
		return InputQuestion, input, nil
	}
	switch InputKind(strings.ToUpper(strings.TrimSpace(kind))) {
	case InputNavigate:
		content = strings.TrimSpace(content)
		if content == "" {
			content = input
		}
		return InputNavigate, content, nil
	default:
		return InputQuestion, input, nil
	}
}

// Translate asks the model for a tool call. Unusable answers become a
// scroll down.
func (g *Guide) Translate(ctx context.Context, command, url string, category agent.PageCategory) (Call, error) {
	resp, err := g.client.Generate(ctx, llm.Request{
		Messages:  []llm.Message{llm.UserMessage(translatePrompt(command, url, category))},
		MaxTokens: guideMaxTokens,
	})
	if err != nil {
		return Call{}, fmt.Errorf("translate command: %w", err)
	}
	call, err := parseCall(resp.Text)
	if err != nil {
		g.logger.Warn().Err(err).Str("command", command).Msg("untranslatable command, scrolling")
		return Call{Name: ToolScrollDown}, nil
	}
	return call, nil
}

// Execute translates and runs command. A click that matches nothing is
// retried with the command itself as the element text.
func (g *Guide) Execute(ctx context.Context, command, url string, category agent.PageCategory) (Result, error) {
	call, err := g.Translate(ctx, command, url, category)
	if err != nil {
		return Result{}, err
	}
	g.logger.Debug().Str("tool", call.Name).Interface("input", call.Input).Msg("guided call")
	res, err := g.tools.Invoke(ctx, call.Name, call.Input)
	if err != nil {
		return Result{}, err
	}
	if call.Name == ToolClick && !res.OK && optionalString(call.Input, "selector") != command {
		g.logger.Debug().Str("command", command).Msg("selector missed, clicking by command text")
		return g.tools.Invoke(ctx, ToolClick, map[string]any{"selector": command})
	}
	return res, nil
}

func parseCall(text string) (Call, error) {
	raw, err := agent.ExtractJSON(text)
	if err != nil {
		return Call{}, err
	}
	var payload struct {
		Action   string `json:"action"`
		Selector string `json:"selector"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Call{}, fmt.Errorf("decode call: %w", err)
	}
	action := strings.ToLower(strings.TrimSpace(payload.Action))
	switch action {
	case ToolClick:
		sel := strings.TrimSpace(payload.Selector)
		if sel == "" {
			return Call{}, fmt.Errorf("click without selector")
		}
		return Call{Name: ToolClick, Input: map[string]any{"selector": sel}}, nil
	case ToolGoto:
		url := strings.TrimSpace(payload.URL)
		if url == "" {
			return Call{}, fmt.Errorf("goto without url")
		}
		return Call{Name: ToolGoto, Input: map[string]any{"url": url}}, nil
	case ToolScrollDown, ToolScrollUp, ToolBack:
		return Call{Name: action}, nil
	default:
		return Call{}, fmt.Errorf("unknown action %q", payload.Action)
	}
}

func classifyInputPrompt(input string) string {
	return fmt.Sprintf(`The user wrote: %q

Classify it:
- If it is a navigation command (go, click, scroll, open, search, back), answer: NAVIGATE|description
- If it is a question or a request for an opinion, answer: QUESTION|question

Answer ONLY in that format.`, input)
}

func translatePrompt(command, url string, category agent.PageCategory) string {
	return fmt.Sprintf(`Translate this navigation command into a browser action.

Command: %q
Current URL: %q
Page type: %q

Answer ONLY with JSON:
{
  "action": "click|goto|scroll_down|scroll_up|back",
  "selector": "CSS selector or visible text, for click",
  "url": "URL, for goto"
}

Common selectors:
- menu -> nav a[href*="menu"], .menu-link, a:has-text("Menu")
- booking -> a[href*="book"], a[href*="reserv"], button:has-text("Book")
- contact -> a[href*="contact"]
- about -> a[href*="about"]`, command, url, string(category))
}
