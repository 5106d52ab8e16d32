package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

type fakeBrowser struct {
	mu    sync.Mutex
	url   string
	stack []string
	links map[string]string
	err   error

	scrolls, clicks, backs int
}

func newFakeBrowser(links map[string]string) *fakeBrowser {
	return &fakeBrowser{links: links}
}

func (b *fakeBrowser) capture() Capture {
	return Capture{Screenshot: snapshot.Screenshot(b.url), URL: b.url}
}

func (b *fakeBrowser) Navigate(_ context.Context, url string) (Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Capture{}, b.err
	}
	if b.url != "" {
		b.stack = append(b.stack, b.url)
	}
	b.url = url
	return b.capture(), nil
}

func (b *fakeBrowser) ClickElement(_ context.Context, descriptor string) (bool, Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return false, Capture{}, b.err
	}
	b.clicks++
	dest, ok := b.links[descriptor]
	if !ok {
		return false, b.capture(), nil
	}
	b.stack = append(b.stack, b.url)
	b.url = dest
	return true, b.capture(), nil
}

func (b *fakeBrowser) ScrollDown(context.Context) (Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Capture{}, b.err
	}
	b.scrolls++
	return b.capture(), nil
}

func (b *fakeBrowser) ScrollUp(context.Context) (Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capture(), b.err
}

func (b *fakeBrowser) GoBack(context.Context) (Capture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return Capture{}, b.err
	}
	b.backs++
	if n := len(b.stack); n > 0 {
		b.url = b.stack[n-1]
		b.stack = b.stack[:n-1]
	}
	return b.capture(), nil
}

func (b *fakeBrowser) Screenshot(context.Context) (snapshot.Screenshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return snapshot.Screenshot(b.url), nil
}

func (b *fakeBrowser) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url
}

func (b *fakeBrowser) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

func (b *fakeBrowser) counts() (scrolls, clicks, backs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrolls, b.clicks, b.backs
}

// fakeOracle classifies by the URL embedded in the fake screenshot and
// replays scripted decisions, repeating the last one.
type fakeOracle struct {
	mu        sync.Mutex
	decisions []Decision
	decideErr error
	decides   int
	classify  int
	contexts  []NavigationContext
}

func scripted(decisions ...Decision) *fakeOracle {
	return &fakeOracle{decisions: decisions}
}

func (o *fakeOracle) ClassifyPage(_ context.Context, shot snapshot.Screenshot) (PageCategory, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classify++
	s := string(shot)
	for _, c := range []PageCategory{CategoryMenu, CategoryAbout, CategoryContact} {
		if strings.Contains(s, "/"+string(c)) {
			return c, nil
		}
	}
	return CategoryHomepage, nil
}

func (o *fakeOracle) Decide(_ context.Context, _ snapshot.Screenshot, nav NavigationContext) (Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decideErr != nil {
		return Decision{}, o.decideErr
	}
	o.contexts = append(o.contexts, nav)
	i := o.decides
	o.decides++
	if i >= len(o.decisions) {
		i = len(o.decisions) - 1
	}
	return o.decisions[i], nil
}

func (o *fakeOracle) decideCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decides
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	hook   func(Event)
	err    error
}

func (s *recordingSink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	hook, err := s.hook, s.err
	s.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return err
}

func (s *recordingSink) ofKind(kind EventKind) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (s *recordingSink) steps() []StepEvent {
	var out []StepEvent
	for _, ev := range s.ofKind(EventStep) {
		out = append(out, ev.Payload.(StepEvent))
	}
	return out
}

func (s *recordingSink) last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

type fakeResponder struct {
	mu        sync.Mutex
	questions []string
	notes     []string
	err       error
}

func (r *fakeResponder) Answer(_ context.Context, _ snapshot.Screenshot, question string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.questions = append(r.questions, question)
	return "answer to " + question, nil
}

func (r *fakeResponder) Note(comment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, comment)
}

type countingRecorder struct {
	mu             sync.Mutex
	steps          map[ActionKind]int
	oracleFallback int
	clickFallback  int
	outcomes       []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{steps: map[ActionKind]int{}}
}

func (r *countingRecorder) Step(a ActionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[a]++
}

func (r *countingRecorder) OracleFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracleFallback++
}

func (r *countingRecorder) ClickFallback() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clickFallback++
}

func (r *countingRecorder) Finished(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

var errBrowserGone = errors.New("browser crashed")

func click(target string) Decision {
	return Decision{Comment: "let's look at " + target, Action: ActionClick, Target: target, Reasoning: "curious"}
}

func scroll() Decision {
	return Decision{Comment: "more please", Action: ActionScrollDown, Reasoning: "want to see more"}
}

func back() Decision {
	return Decision{Comment: "not for me", Action: ActionBack, Reasoning: "dead end"}
}

func done() Decision {
	return Decision{Comment: "seen enough", Action: ActionDone, Reasoning: "made up my mind"}
}
