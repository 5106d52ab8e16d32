package agent

import (
	"sync"
	"time"

	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

type EntryKind string

const (
	EntryNavigation EntryKind = "navigation"
	EntryComment    EntryKind = "comment"
	EntryAction     EntryKind = "action"
	EntryQuestion   EntryKind = "question"
	EntryAnswer     EntryKind = "answer"
)

// Entry is one line of the session history. Which fields are set depends on
// Kind: navigation has Category/URL/Screenshot, comment/question/answer have
// Content, action has Action/Target/Reasoning.
type Entry struct {
	Kind       EntryKind           `json:"type"`
	At         time.Time           `json:"timestamp"`
	Category   PageCategory        `json:"page_type,omitempty"`
	URL        string              `json:"url,omitempty"`
	Screenshot snapshot.Screenshot `json:"-"`
	Content    string              `json:"content,omitempty"`
	Action     ActionKind          `json:"action,omitempty"`
	Target     string              `json:"target,omitempty"`
	Reasoning  string              `json:"reasoning,omitempty"`
}

// History is an append-only log shared by everything acting on one session.
type History struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

func NewHistory() *History {
	return &History{now: time.Now}
}

func (h *History) append(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.At = h.now()
	h.entries = append(h.entries, e)
}

func (h *History) Navigation(category PageCategory, url string, shot snapshot.Screenshot) {
	h.append(Entry{Kind: EntryNavigation, Category: category, URL: url, Screenshot: shot})
}

func (h *History) Comment(text string) {
	h.append(Entry{Kind: EntryComment, Content: text})
}

func (h *History) Action(kind ActionKind, target, reasoning string) {
	h.append(Entry{Kind: EntryAction, Action: kind, Target: target, Reasoning: reasoning})
}

func (h *History) Question(text string) {
	h.append(Entry{Kind: EntryQuestion, Content: text})
}

func (h *History) Answer(text string) {
	h.append(Entry{Kind: EntryAnswer, Content: text})
}

// Entries returns a copy of the log in append order.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
