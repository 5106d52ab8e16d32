package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

type ActionKind string

const (
	ActionClick      ActionKind = "CLICK"
	ActionScrollDown ActionKind = "SCROLL_DOWN"
	ActionBack       ActionKind = "BACK"
	ActionDone       ActionKind = "DONE"
)

func (a ActionKind) valid() bool {
	switch a {
	case ActionClick, ActionScrollDown, ActionBack, ActionDone:
		return true
	}
	return false
}

const (
	// ReasonUnparseable is the reasoning of the fallback decision.
	ReasonUnparseable = "unparseable response"

	fallbackCommentLen = 200
)

// Decision is one oracle answer. Malformed marks the fallback variant
// produced when the answer could not be parsed.
type Decision struct {
	Comment   string     `json:"comment"`
	Action    ActionKind `json:"action"`
	Target    string     `json:"target,omitempty"`
	Reasoning string     `json:"reasoning"`
	Malformed bool       `json:"-"`
}

// ParseDecision turns raw model text into a Decision. It never fails:
// anything that is not a JSON object with a known action becomes the
// DONE fallback carrying the first 200 characters of raw as comment.
func ParseDecision(raw string) Decision {
	dec, err := parseDecision(raw)
	if err != nil {
		return fallbackDecision(raw)
	}
	return dec
}

func parseDecision(text string) (Decision, error) {
	jsonStr, err := ExtractJSON(text)
	if err != nil {
		return Decision{}, err
	}
	var parsed struct {
		Comment   string `json:"comment"`
		Action    string `json:"action"`
		Target    string `json:"target"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return Decision{}, fmt.Errorf("decision json parse: %w", err)
	}
	rawAction := strings.TrimSpace(parsed.Action)
	// Models sometimes echo the template ("CLICK|the menu link").
	if kind, rest, ok := strings.Cut(rawAction, "|"); ok {
		if k := ActionKind(strings.ToUpper(strings.TrimSpace(kind))); k.valid() {
			rawAction = string(k)
			if parsed.Target == "" {
				parsed.Target = rest
			}
		}
	}
	action := ActionKind(strings.ToUpper(rawAction))
	if action == "" {
		action = ActionDone
	}
	if !action.valid() {
		return Decision{}, fmt.Errorf("unknown action %q", parsed.Action)
	}
	return Decision{
		Comment:   strings.TrimSpace(parsed.Comment),
		Action:    action,
		Target:    strings.TrimSpace(parsed.Target),
		Reasoning: strings.TrimSpace(parsed.Reasoning),
	}, nil
}

func fallbackDecision(raw string) Decision {
	return Decision{
		Comment:   truncateRunes(strings.TrimSpace(raw), fallbackCommentLen),
		Action:    ActionDone,
		Reasoning: ReasonUnparseable,
		Malformed: true,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// ExtractJSON returns the first balanced {...} object in text. Model output
// often wraps JSON in prose or code fences.
func ExtractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			if depth > 0 {
				inStr = !inStr
			}
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}
