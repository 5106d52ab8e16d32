package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/polzovatel/persona-navigator/internal/llm"
	"github.com/polzovatel/persona-navigator/internal/persona"
	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

// Responder answers operator questions in the persona's voice.
type Responder interface {
	Answer(ctx context.Context, shot snapshot.Screenshot, question string) (string, error)
	// Note adds something the persona said to the conversation.
	Note(comment string)
}

const (
	transcriptLimit   = 20
	insightsMaxTokens = 2048
)

type turn struct {
	fromPersona bool
	text        string
}

// Narrator talks as a persona about the current screenshot and remembers the
// conversation with the operator. Safe for concurrent use.
type Narrator struct {
	client      llm.Client
	persona     persona.Persona
	siteContext string

	mu         sync.Mutex
	transcript []turn
}

func NewNarrator(client llm.Client, p persona.Persona, siteContext string) *Narrator {
	return &Narrator{client: client, persona: p, siteContext: siteContext}
}

func (n *Narrator) Persona() persona.Persona { return n.persona }

// HasTranscript reports whether the operator and persona have exchanged anything.
func (n *Narrator) HasTranscript() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transcript) > 0
}

func (n *Narrator) Answer(ctx context.Context, shot snapshot.Screenshot, question string) (string, error) {
	answer, err := n.ask(ctx, shot, question)
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	n.remember(turn{text: question}, turn{fromPersona: true, text: answer})
	return answer, nil
}

// Comment asks for a spontaneous reaction to the page.
func (n *Narrator) Comment(ctx context.Context, shot snapshot.Screenshot, category PageCategory) (string, error) {
	comment, err := n.ask(ctx, shot, persona.CommentPrompt(category.Label()))
	if err != nil {
		return "", fmt.Errorf("comment: %w", err)
	}
	n.remember(turn{fromPersona: true, text: comment})
	return comment, nil
}

func (n *Narrator) Note(comment string) {
	if strings.TrimSpace(comment) == "" {
		return
	}
	n.remember(turn{fromPersona: true, text: comment})
}

func (n *Narrator) ask(ctx context.Context, shot snapshot.Screenshot, text string) (string, error) {
	prompt := n.withTranscript(text)
	resp, err := n.client.Generate(ctx, llm.Request{
		System:      persona.SystemPrompt(n.persona, n.siteContext),
		Messages:    []llm.Message{llm.UserMessage(prompt, shot)},
		Temperature: decideTemperature,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (n *Narrator) withTranscript(text string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.transcript) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("CONVERSATION SO FAR:\n")
	for _, t := range n.transcript {
		if t.fromPersona {
			fmt.Fprintf(&b, "- You: %s\n", t.text)
		} else {
			fmt.Fprintf(&b, "- Facilitator: %s\n", t.text)
		}
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

func (n *Narrator) remember(turns ...turn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transcript = append(n.transcript, turns...)
	if over := len(n.transcript) - transcriptLimit; over > 0 {
		n.transcript = append([]turn(nil), n.transcript[over:]...)
	}
}

// Summary renders the history for the insights prompt.
func Summary(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Kind {
		case EntryNavigation:
			fmt.Fprintf(&b, "[Navigation] %s - %s\n", e.Category, e.URL)
		case EntryComment:
			fmt.Fprintf(&b, "[Persona comment] %s\n", e.Content)
		case EntryQuestion:
			fmt.Fprintf(&b, "[Question] %s\n", e.Content)
		case EntryAnswer:
			fmt.Fprintf(&b, "[Persona answer] %s\n", e.Content)
		case EntryAction:
			fmt.Fprintf(&b, "[Action] %s %s - %s\n", e.Action, e.Target, e.Reasoning)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Insights asks the model for a UX report on the session.
func Insights(ctx context.Context, client llm.Client, p persona.Persona, siteContext string, entries []Entry) (string, error) {
	resp, err := client.Generate(ctx, llm.Request{
		System:    persona.InsightsSystemPrompt,
		Messages:  []llm.Message{llm.UserMessage(persona.InsightsPrompt(p, siteContext, Summary(entries)))},
		MaxTokens: insightsMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("insights: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
