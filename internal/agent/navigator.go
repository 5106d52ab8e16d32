package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/polzovatel/persona-navigator/internal/persona"
	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

var (
	// ErrCapabilityLost wraps every failure that ends a run: the browser or
	// the model became unreachable, or events could not be delivered.
	ErrCapabilityLost  = errors.New("navigation capability lost")
	// ErrSessionFinished is returned when Run is called more than once.
	ErrSessionFinished = errors.New("navigation session already ran")
)

const (
	DefaultStepDelay   = 3 * time.Second
	DefaultPollTimeout = 100 * time.Millisecond

	// OutcomeError is reported to the Recorder when a run fails.
	OutcomeError = "error"
)

type Config struct {
	MaxSteps    int
	StepDelay   time.Duration
	PollTimeout time.Duration

	Persona     persona.Persona
	Objective   string
	SiteContext string
}

type Status int32

const (
	StatusRunning Status = iota
	StatusPaused
	StatusStopped
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusStopped:
		return "STOPPED"
	case StatusDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

func (s Status) Terminal() bool { return s == StatusStopped || s == StatusDone }

// Navigator runs one autonomous browsing session for a persona.
type Navigator struct {
	cfg       Config
	browser   Browser
	oracle    Oracle
	sink      Sink
	controls  Controls
	responder Responder
	history   *History
	recorder  Recorder
	logger    zerolog.Logger

	state   *NavigationState
	status  atomic.Int32
	started atomic.Bool

	// current view
	shot     snapshot.Screenshot
	url      string
	category PageCategory
}

type Option func(*Navigator)

func WithControls(c Controls) Option { return func(n *Navigator) { n.controls = c } }

func WithResponder(r Responder) Option { return func(n *Navigator) { n.responder = r } }

func WithHistory(h *History) Option { return func(n *Navigator) { n.history = h } }

func WithRecorder(r Recorder) Option { return func(n *Navigator) { n.recorder = r } }

func WithLogger(l zerolog.Logger) Option { return func(n *Navigator) { n.logger = l } }

func NewNavigator(cfg Config, browser Browser, oracle Oracle, sink Sink, opts ...Option) *Navigator {
	if cfg.MaxSteps < 1 {
		cfg.MaxSteps = 1
	}
	if cfg.StepDelay < 0 {
		cfg.StepDelay = 0
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	n := &Navigator{
		cfg:      cfg,
		browser:  browser,
		oracle:   oracle,
		sink:     sink,
		controls: noControls{},
		recorder: nopRecorder{},
		logger:   zerolog.Nop(),
		category: CategoryOther,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.history == nil {
		n.history = NewHistory()
	}
	n.state = NewNavigationState(cfg.MaxSteps)
	return n
}

func (n *Navigator) Status() Status { return Status(n.status.Load()) }

func (n *Navigator) setStatus(s Status) {
	for {
		cur := n.status.Load()
		if Status(cur).Terminal() {
			return
		}
		if n.status.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

func (n *Navigator) History() *History { return n.history }

// State exposes the navigation state. Read it only after Run returned.
func (n *Navigator) State() *NavigationState { return n.state }

// Run loads startURL and navigates until the persona is done, the step
// budget runs out or the operator stops the session. Context cancellation
// counts as a stop. Failures are reported as an error event and returned
// wrapped in ErrCapabilityLost.
func (n *Navigator) Run(ctx context.Context, startURL string) (DoneReason, error) {
	if !n.started.CompareAndSwap(false, true) {
		return "", ErrSessionFinished
	}

	reason, err := n.run(ctx, startURL)
	if err != nil && ctx.Err() != nil {
		reason, err = ReasonStopped, nil
	}
	final := context.WithoutCancel(ctx)
	if err != nil {
		n.setStatus(StatusStopped)
		n.recorder.Finished(OutcomeError)
		n.logger.Error().Err(err).Int("step", n.state.Step()).Msg("navigation aborted")
		_ = n.sink.Emit(final, Event{Kind: EventError, Payload: ErrorEvent{Message: err.Error()}})
		return "", fmt.Errorf("%w: %w", ErrCapabilityLost, err)
	}

	if reason == ReasonStopped {
		n.setStatus(StatusStopped)
	} else {
		n.setStatus(StatusDone)
	}
	n.recorder.Finished(string(reason))
	n.logger.Info().
		Str("reason", string(reason)).
		Int("step", n.state.Step()).
		Int("visited", n.state.VisitedCount()).
		Msg("navigation finished")
	if err := n.sink.Emit(final, Event{Kind: EventDone, Payload: DoneEvent{Reason: reason}}); err != nil {
		return reason, fmt.Errorf("%w: emit: %w", ErrCapabilityLost, err)
	}
	return reason, nil
}

func (n *Navigator) run(ctx context.Context, startURL string) (DoneReason, error) {
	if err := n.emitStatus(ctx, "Opening "+startURL); err != nil {
		return "", err
	}
	capt, err := n.browser.Navigate(ctx, startURL)
	if err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	cat, err := n.oracle.ClassifyPage(ctx, capt.Screenshot)
	if err != nil {
		return "", err
	}
	n.view(capt, cat)
	n.state.RecordVisit(capt.URL, cat)
	n.history.Navigation(cat, capt.URL, capt.Screenshot)

	// The first decision only comments the landing page; its action is
	// re-decided by the first loop iteration.
	dec, err := n.decide(ctx)
	if err != nil {
		return "", err
	}
	n.comment(dec)
	n.recorder.Step(dec.Action)
	if err := n.emitStep(ctx, dec, dec.Action); err != nil {
		return "", err
	}
	if dec.Action == ActionDone {
		return ReasonDone, nil
	}

	budget := n.state.MaxSteps()
	for i := 1; i < budget && n.state.CanContinue(); i++ {
		stop, err := n.checkpoint(ctx, n.cfg.PollTimeout)
		if err != nil {
			return "", err
		}
		if stop {
			return ReasonStopped, nil
		}

		reason, done, err := n.step(ctx)
		if err != nil {
			return "", err
		}
		if done {
			return reason, nil
		}

		if i < budget-1 {
			stop, err := n.checkpoint(ctx, n.cfg.StepDelay)
			if err != nil {
				return "", err
			}
			if stop {
				return ReasonStopped, nil
			}
		}
	}
	return ReasonMaxSteps, nil
}

func (n *Navigator) step(ctx context.Context) (DoneReason, bool, error) {
	if err := n.emitStatus(ctx, fmt.Sprintf("Step %d/%d...", n.state.Step()+1, n.state.MaxSteps())); err != nil {
		return "", false, err
	}
	shot, err := n.browser.Screenshot(ctx)
	if err != nil {
		return "", false, fmt.Errorf("screenshot: %w", err)
	}
	cat, err := n.oracle.ClassifyPage(ctx, shot)
	if err != nil {
		return "", false, err
	}
	n.view(Capture{Screenshot: shot, URL: n.browser.URL()}, cat)

	dec, err := n.decide(ctx)
	if err != nil {
		return "", false, err
	}

	action, changed, err := n.execute(ctx, dec)
	if err != nil {
		return "", false, err
	}

	if changed {
		n.history.Navigation(n.category, n.url, n.shot)
	}
	n.comment(dec)
	if action != ActionDone {
		n.history.Action(action, dec.Target, dec.Reasoning)
	}
	n.recorder.Step(action)

	n.logger.Info().
		Int("step", n.state.Step()).
		Str("url", n.url).
		Str("category", string(n.category)).
		Str("action", string(action)).
		Str("target", dec.Target).
		Int("scrolls", n.state.ScrollCount()).
		Msg("navigation step")

	if err := n.emitStep(ctx, dec, action); err != nil {
		return "", false, err
	}

	switch {
	case action == ActionDone:
		return ReasonDone, true, nil
	case !n.state.CanContinue():
		return ReasonMaxSteps, true, nil
	}
	return "", false, nil
}

// execute applies dec to the browser. It returns the action actually taken
// and whether the navigation state changed.
func (n *Navigator) execute(ctx context.Context, dec Decision) (ActionKind, bool, error) {
	switch dec.Action {
	case ActionClick:
		if dec.Target == "" {
			n.logger.Warn().Msg("click decision without target, nothing to do")
			return ActionClick, false, nil
		}
		ok, capt, err := n.browser.ClickElement(ctx, dec.Target)
		if err != nil {
			return "", false, fmt.Errorf("click: %w", err)
		}
		if !ok {
			n.recorder.ClickFallback()
			n.logger.Warn().Str("target", dec.Target).Msg("click target not found, scrolling instead")
			capt, err := n.browser.ScrollDown(ctx)
			if err != nil {
				return "", false, fmt.Errorf("scroll: %w", err)
			}
			n.state.RecordScroll()
			n.view(capt, n.category)
			return ActionClick, true, nil
		}
		if !n.state.ShouldVisit(capt.URL) {
			// Same page or already seen: refresh the view without spending a step.
			n.shot, n.url = capt.Screenshot, capt.URL
			return ActionClick, false, nil
		}
		cat, err := n.oracle.ClassifyPage(ctx, capt.Screenshot)
		if err != nil {
			return "", false, err
		}
		n.state.RecordVisit(capt.URL, cat)
		n.view(capt, cat)
		return ActionClick, true, nil

	case ActionScrollDown:
		if !n.state.CanScroll() {
			n.logger.Info().Str("url", n.url).Msg("scroll budget exhausted, page done")
			return ActionDone, false, nil
		}
		capt, err := n.browser.ScrollDown(ctx)
		if err != nil {
			return "", false, fmt.Errorf("scroll: %w", err)
		}
		n.state.RecordScroll()
		n.view(capt, n.category)
		return ActionScrollDown, true, nil

	case ActionBack:
		capt, err := n.browser.GoBack(ctx)
		if err != nil {
			return "", false, fmt.Errorf("back: %w", err)
		}
		cat, err := n.oracle.ClassifyPage(ctx, capt.Screenshot)
		if err != nil {
			return "", false, err
		}
		n.view(capt, cat)
		return ActionBack, true, nil
	}
	return ActionDone, false, nil
}

func (n *Navigator) decide(ctx context.Context) (Decision, error) {
	dec, err := n.oracle.Decide(ctx, n.shot, NavigationContext{
		Persona:     n.cfg.Persona,
		Objective:   n.cfg.Objective,
		SiteContext: n.cfg.SiteContext,
		Category:    n.category,
		URL:         n.url,
		Visited:     n.state.VisitedPages(),
		Step:        n.state.Step(),
		MaxSteps:    n.state.MaxSteps(),
		ScrollsLeft: n.state.ScrollsLeft(),
	})
	if err != nil {
		return Decision{}, err
	}
	if dec.Malformed {
		n.recorder.OracleFallback()
	}
	return dec, nil
}

func (n *Navigator) comment(dec Decision) {
	n.history.Comment(dec.Comment)
	if n.responder != nil {
		n.responder.Note(dec.Comment)
	}
}

func (n *Navigator) view(c Capture, cat PageCategory) {
	n.shot, n.url, n.category = c.Screenshot, c.URL, cat
}

// checkpoint consumes operator signals for up to window. It reports true
// when the session must stop.
func (n *Navigator) checkpoint(ctx context.Context, window time.Duration) (bool, error) {
	deadline := time.Now().Add(window)
	for {
		sig, ok, err := n.controls.Poll(ctx, time.Until(deadline))
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		stop, err := n.handle(ctx, sig)
		if err != nil || stop {
			return stop, err
		}
		if time.Until(deadline) <= 0 {
			return false, nil
		}
	}
}

func (n *Navigator) handle(ctx context.Context, sig Signal) (bool, error) {
	n.logger.Debug().Stringer("signal", sig.Kind).Msg("operator signal")
	switch sig.Kind {
	case SignalStop:
		return true, nil
	case SignalPause:
		return n.pause(ctx)
	case SignalQuestion:
		return false, n.answer(ctx, sig.Text)
	}
	return false, nil
}

// pause blocks until resume or stop, answering questions meanwhile.
func (n *Navigator) pause(ctx context.Context) (bool, error) {
	n.setStatus(StatusPaused)
	if err := n.emitStatus(ctx, "Paused"); err != nil {
		return false, err
	}
	for {
		sig, err := n.controls.Wait(ctx)
		if err != nil {
			return false, err
		}
		switch sig.Kind {
		case SignalStop:
			return true, nil
		case SignalResume:
			n.setStatus(StatusRunning)
			return false, n.emitStatus(ctx, "Resumed")
		case SignalQuestion:
			if err := n.answer(ctx, sig.Text); err != nil {
				return false, err
			}
		}
	}
}

func (n *Navigator) answer(ctx context.Context, question string) error {
	if question == "" {
		return nil
	}
	if n.responder == nil {
		n.logger.Warn().Str("question", question).Msg("no responder, question ignored")
		return nil
	}
	shot, err := n.browser.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("screenshot: %w", err)
	}
	n.history.Question(question)
	answer, err := n.responder.Answer(ctx, shot, question)
	if err != nil {
		return err
	}
	n.history.Answer(answer)
	return n.sink.Emit(ctx, Event{Kind: EventAnswer, Payload: AnswerEvent{Question: question, Answer: answer}})
}

func (n *Navigator) emitStatus(ctx context.Context, msg string) error {
	return n.sink.Emit(ctx, Event{Kind: EventStatus, Payload: StatusEvent{Message: msg}})
}

func (n *Navigator) emitStep(ctx context.Context, dec Decision, action ActionKind) error {
	return n.sink.Emit(ctx, Event{Kind: EventStep, Payload: StepEvent{
		Screenshot: n.shot,
		URL:        n.url,
		Category:   n.category,
		Comment:    dec.Comment,
		Action:     action,
		Target:     dec.Target,
		Reasoning:  dec.Reasoning,
		Step:       n.state.Step(),
		MaxSteps:   n.state.MaxSteps(),
	}})
}
