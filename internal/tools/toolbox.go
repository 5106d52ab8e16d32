// Package tools executes operator commands in guided mode.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/polzovatel/persona-navigator/internal/agent"
)

const (
	ToolClick      = "click"
	ToolGoto       = "goto"
	ToolScrollDown = "scroll_down"
	ToolScrollUp   = "scroll_up"
	ToolBack       = "back"
)

type Toolbox interface {
	Describe() []Tool
	Invoke(ctx context.Context, name string, input map[string]any) (Result, error)
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Result carries the page after the tool ran. OK is false when a click found
// nothing to click.
type Result struct {
	Observation string
	Capture     agent.Capture
	OK          bool
}

type standard struct {
	browser agent.Browser
	tools   []Tool
}

func New(browser agent.Browser) Toolbox {
	return &standard{
		browser: browser,
		tools: []Tool{
			newTool(ToolClick, "Click an element by CSS selector or visible text", schema{"selector": str("CSS selector or visible text")}, []string{"selector"}),
			newTool(ToolGoto, "Open URL", schema{"url": str("url to open")}, []string{"url"}),
			newTool(ToolScrollDown, "Scroll down most of a screen", schema{}, nil),
			newTool(ToolScrollUp, "Scroll up most of a screen", schema{}, nil),
			newTool(ToolBack, "Go back in history", schema{}, nil),
		},
	}
}

func (s *standard) Describe() []Tool {
	return append([]Tool(nil), s.tools...)
}

func (s *standard) Invoke(ctx context.Context, name string, input map[string]any) (Result, error) {
	switch name {
	case ToolClick:
		sel, err := requiredString(input, "selector")
		if err != nil {
			return Result{}, err
		}
		sel = sanitizeSelector(sel)
		ok, capt, err := s.browser.ClickElement(ctx, sel)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Observation: fmt.Sprintf("nothing matched %q", sel), Capture: capt}, nil
		}
		return Result{Observation: fmt.Sprintf("clicked %s", sel), Capture: capt, OK: true}, nil

	case ToolGoto:
		url, err := requiredString(input, "url")
		if err != nil {
			return Result{}, err
		}
		capt, err := s.browser.Navigate(ctx, url)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: fmt.Sprintf("opened %s", capt.URL), Capture: capt, OK: true}, nil

	case ToolScrollDown:
		capt, err := s.browser.ScrollDown(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: "scrolled down", Capture: capt, OK: true}, nil

	case ToolScrollUp:
		capt, err := s.browser.ScrollUp(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: "scrolled up", Capture: capt, OK: true}, nil

	case ToolBack:
		capt, err := s.browser.GoBack(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Observation: "went back", Capture: capt, OK: true}, nil

	default:
		return Result{}, fmt.Errorf("unknown tool %s", name)
	}
}

// Helpers for schema and extraction.
type schema map[string]any

func newTool(name, desc string, props schema, required []string) Tool {
	return Tool{
		Name:        name,
		Description: desc,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

func str(desc string) map[string]any { return map[string]any{"type": "string", "description": desc} }

func requiredString(input map[string]any, key string) (string, error) {
	val, ok := input[key]
	if !ok {
		return "", fmt.Errorf("field %s required", key)
	}
	switch v := val.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", fmt.Errorf("field %s empty", key)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("field %s must be string", key)
	}
}

func optionalString(input map[string]any, key string) string {
	val, ok := input[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// sanitizeSelector collapses whitespace; model output often breaks
// selectors across lines.
func sanitizeSelector(sel string) string {
	return strings.Join(strings.Fields(sel), " ")
}
