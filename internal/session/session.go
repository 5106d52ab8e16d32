// Package session serves operator sessions over websockets. Each connection
// owns its browser, navigation state and history.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/browser"
	"github.com/polzovatel/persona-navigator/internal/export"
	"github.com/polzovatel/persona-navigator/internal/llm"
	"github.com/polzovatel/persona-navigator/internal/metrics"
	"github.com/polzovatel/persona-navigator/internal/persona"
	"github.com/polzovatel/persona-navigator/internal/snapshot"
	"github.com/polzovatel/persona-navigator/internal/tools"
)

const (
	readLimit    = 1 << 20
	writeTimeout = 10 * time.Second
	inboxSize    = 16
	signalsSize  = 16

	defaultScrollDelta = 300
)

var (
	errNoBrowser    = errors.New("no page open, send start first")
	errMissingURL   = errors.New("missing URL")
	errNoTranscript = errors.New("no conversation to generate insights from")
	errRunActive    = errors.New("autonomous run in progress, only stop, pause, resume and questions are accepted")
	errBusy         = errors.New("too many pending actions, try again")
)

// Browser is the page driver a session needs on top of agent.Browser.
type Browser interface {
	agent.Browser
	ClickAt(ctx context.Context, x, y float64) (agent.Capture, error)
	ScrollBy(ctx context.Context, delta int) (agent.Capture, error)
	SetViewport(ctx context.Context, vp browser.Viewport) (agent.Capture, error)
	Viewport() browser.Viewport
	Close() error
}

// BrowserFactory opens a fresh browser for one session.
type BrowserFactory func(ctx context.Context, vp browser.Viewport) (Browser, error)

type Settings struct {
	MaxSteps    int
	StepDelay   time.Duration
	PollTimeout time.Duration
	// OracleRPS caps model calls per session; zero disables the cap.
	OracleRPS   float64
	Viewport    browser.Viewport
}

type Deps struct {
	LLM      llm.Client
	Personas *persona.Registry
	Browsers BrowserFactory
	// Metrics is optional.
	Metrics  *metrics.Collector
	Settings Settings
	Logger   zerolog.Logger
}

// Session is one operator connection.
type Session struct {
	id     string
	conn   *websocket.Conn
	deps   Deps
	logger zerolog.Logger
	llm    llm.Client
	oracle agent.Oracle

	// Owned by the processing goroutine.
	browser     Browser
	guide       *tools.Guide
	persona     persona.Persona
	narrator    *agent.Narrator
	history     *agent.History
	state       *agent.NavigationState
	mode        export.Mode
	objective   persona.Objective
	siteContext string
	maxSteps    int
	shot        snapshot.Screenshot
	url         string
	category    agent.PageCategory

	// Shared with the reader.
	running atomic.Bool
	signals chan agent.Signal
}

func newSession(conn *websocket.Conn, deps Deps) *Session {
	id := uuid.NewString()
	logger := deps.Logger.With().Str("session", id).Logger()
	client := deps.LLM
	if deps.Metrics != nil {
		client = deps.Metrics.InstrumentLLM(client)
	}
	client = llm.Throttle(client, deps.Settings.OracleRPS, 1)
	return &Session{
		id:       id,
		conn:     conn,
		deps:     deps,
		logger:   logger,
		llm:      client,
		oracle:   agent.NewOracle(client, logger.With().Str("comp", "oracle").Logger()),
		history:  agent.NewHistory(),
		state:    agent.NewNavigationState(max(deps.Settings.MaxSteps, 1)),
		mode:     export.ModeHybrid,
		maxSteps: max(deps.Settings.MaxSteps, 1),
		category: agent.CategoryOther,
		signals:  make(chan agent.Signal, signalsSize),
	}
}

func (s *Session) ID() string { return s.id }

// Serve runs until the peer disconnects or ctx ends. The browser is closed
// on every path.
func (s *Session) Serve(ctx context.Context) error {
	if s.deps.Metrics != nil {
		defer s.deps.Metrics.SessionOpened()()
	}
	defer s.closeBrowser()
	s.conn.SetReadLimit(readLimit)
	s.logger.Info().Msg("session opened")

	g, gctx := errgroup.WithContext(ctx)
	inbox := make(chan inbound, inboxSize)
	g.Go(func() error {
		defer close(inbox)
		return s.read(gctx, inbox)
	})
	g.Go(func() error {
		return s.process(gctx, inbox)
	})
	err := g.Wait()
	if isClosure(err) {
		err = nil
	}
	s.logger.Info().Err(err).Msg("session closed")
	return err
}

func isClosure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}

// read decodes messages. While an autonomous run is active its control
// messages go straight to the navigator and everything else is refused.
// The reader never blocks on the processor, so a stop always gets through.
func (s *Session) read(ctx context.Context, inbox chan<- inbound) error {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn().Err(err).Msg("malformed message")
			msg = inbound{Action: actionInvalid, Text: err.Error()}
		}
		msg.Text = strings.TrimSpace(msg.Text)

		if s.running.Load() {
			if sig, ok := msg.signal(); ok {
				select {
				case s.signals <- sig:
				default:
					s.logger.Warn().Str("action", msg.Action).Msg("control queue full, dropping")
				}
				continue
			}
			if err := s.refuse(ctx, msg, errRunActive); err != nil {
				return err
			}
			continue
		}
		select {
		case inbox <- msg:
		default:
			if err := s.refuse(ctx, msg, errBusy); err != nil {
				return err
			}
		}
	}
}

func (s *Session) refuse(ctx context.Context, msg inbound, reason error) error {
	s.logger.Debug().Str("action", msg.Action).Err(reason).Msg("refused")
	return s.send(ctx, eventError, errorMsg{Message: fmt.Sprintf("%s: %v", msg.Action, reason)})
}

func (s *Session) process(ctx context.Context, inbox <-chan inbound) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			err := s.handle(ctx, msg)
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Str("action", msg.Action).Msg("action failed")
			if errors.Is(err, browser.ErrClosed) {
				s.closeBrowser()
			}
			if err := s.send(ctx, eventError, errorMsg{Message: err.Error()}); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, msg inbound) error {
	s.logger.Debug().Str("action", msg.Action).Msg("inbound")
	switch msg.Action {
	case actionStart:
		return s.start(ctx, msg)
	case actionInput:
		return s.input(ctx, msg.Text)
	case actionComment:
		return s.comment(ctx)
	case actionNavigateURL:
		return s.navigateURL(ctx, strings.TrimSpace(msg.URL))
	case actionClick:
		return s.clickAt(ctx, msg.X, msg.Y)
	case actionScroll:
		delta := defaultScrollDelta
		if msg.Delta != nil {
			delta = *msg.Delta
		}
		return s.scroll(ctx, delta)
	case actionSetViewport:
		return s.setViewport(ctx, msg.Viewport)
	case actionInsights:
		return s.insights(ctx)
	case actionExport:
		return s.export(ctx, msg)
	case actionHighlight:
		return s.highlight(ctx, msg)
	case actionStop, actionPause, actionResume:
		s.logger.Debug().Str("action", msg.Action).Msg("no autonomous run, ignoring")
		return nil
	case actionInvalid:
		return fmt.Errorf("malformed message: %s", msg.Text)
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
}

func (s *Session) start(ctx context.Context, msg inbound) error {
	url := strings.TrimSpace(msg.URL)
	if url == "" {
		return errMissingURL
	}
	id := msg.PersonaID
	if id == "" {
		id = s.deps.Personas.All()[0].ID
	}
	p, err := s.deps.Personas.Get(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(msg.CustomProfile) != "" {
		p = persona.Customize(p, msg.CustomProfile)
	}
	vp := s.deps.Settings.Viewport
	if msg.Viewport != "" {
		v, ok := browser.ViewportByName(msg.Viewport)
		if !ok {
			return fmt.Errorf("unknown viewport %q", msg.Viewport)
		}
		vp = v
	}

	s.closeBrowser()
	if err := s.status(ctx, "Starting browser..."); err != nil {
		return err
	}
	b, err := s.deps.Browsers(ctx, vp)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	s.browser = b
	s.guide = tools.NewGuide(s.llm, tools.New(b), s.logger.With().Str("comp", "guide").Logger())
	s.persona = p
	s.siteContext = strings.TrimSpace(msg.SiteContext)
	s.narrator = agent.NewNarrator(s.llm, p, s.siteContext)
	s.history = agent.NewHistory()
	s.maxSteps = s.deps.Settings.MaxSteps
	if msg.MaxSteps > 0 {
		s.maxSteps = msg.MaxSteps
	}
	s.maxSteps = max(s.maxSteps, 1)
	s.state = agent.NewNavigationState(s.maxSteps)
	s.mode = parseMode(msg.Mode)
	s.objective = s.deps.Personas.Objective(msg.Objective)
	s.logger.Info().
		Str("url", url).
		Str("persona", p.ID).
		Str("mode", string(s.mode)).
		Str("viewport", vp.Name).
		Msg("session started")

	if s.mode == export.ModeAutonomous {
		return s.autonomous(ctx, url)
	}
	capt, err := b.Navigate(ctx, url)
	if err != nil {
		return err
	}
	return s.arrive(ctx, capt, true)
}

func parseMode(m string) export.Mode {
	switch export.Mode(strings.ToLower(strings.TrimSpace(m))) {
	case export.ModeGuided:
		return export.ModeGuided
	case export.ModeAutonomous:
		return export.ModeAutonomous
	default:
		return export.ModeHybrid
	}
}

// arrive classifies the page just reached, records it and shows it.
func (s *Session) arrive(ctx context.Context, capt agent.Capture, visit bool) error {
	cat, err := s.oracle.ClassifyPage(ctx, capt.Screenshot)
	if err != nil {
		return err
	}
	s.view(capt, cat)
	if visit {
		s.state.RecordVisit(capt.URL, cat)
	}
	s.history.Navigation(cat, capt.URL, capt.Screenshot)
	return s.sendNavigation(ctx)
}

func (s *Session) view(capt agent.Capture, cat agent.PageCategory) {
	s.shot = capt.Screenshot
	s.url = capt.URL
	s.category = cat
}

func (s *Session) autonomous(ctx context.Context, url string) error {
	for len(s.signals) > 0 {
		<-s.signals
	}
	opts := []agent.Option{
		agent.WithControls(agent.ChanControls(s.signals)),
		agent.WithResponder(s.narrator),
		agent.WithHistory(s.history),
		agent.WithLogger(s.logger.With().Str("comp", "navigator").Logger()),
	}
	if s.deps.Metrics != nil {
		opts = append(opts, agent.WithRecorder(s.deps.Metrics))
	}
	nav := agent.NewNavigator(agent.Config{
		MaxSteps:    s.maxSteps,
		StepDelay:   s.deps.Settings.StepDelay,
		PollTimeout: s.deps.Settings.PollTimeout,
		Persona:     s.persona,
		Objective:   s.objective.Prompt,
		SiteContext: s.siteContext,
	}, s.browser, s.oracle, agent.SinkFunc(s.forward), opts...)

	s.running.Store(true)
	reason, err := nav.Run(ctx, url)
	s.running.Store(false)
	s.state = nav.State()
	if err != nil {
		// The navigator already reported the failure to the operator.
		s.logger.Warn().Err(err).Msg("autonomous run failed")
		if errors.Is(err, browser.ErrClosed) {
			s.closeBrowser()
		}
		return nil
	}
	s.logger.Info().Str("reason", string(reason)).Msg("autonomous run finished")
	return nil
}

// forward relays navigator events to the operator.
func (s *Session) forward(ctx context.Context, ev agent.Event) error {
	switch p := ev.Payload.(type) {
	case agent.StatusEvent:
		return s.send(ctx, eventStatus, statusMsg{Message: p.Message})
	case agent.StepEvent:
		s.view(agent.Capture{Screenshot: p.Screenshot, URL: p.URL}, p.Category)
		return s.send(ctx, eventStep, stepMsg{
			StepEvent:   p,
			Screenshot:  p.Screenshot.Base64(),
			PageLabel:   p.Category.Label(),
			PersonaName: s.persona.FirstName(),
			Suggestions: s.deps.Personas.Suggestions(string(p.Category)),
		})
	case agent.DoneEvent:
		// The operator may act as soon as the run is reported finished.
		s.running.Store(false)
		return s.send(ctx, eventDone, doneMsg{Reason: p.Reason, History: s.history.Entries()})
	case agent.AnswerEvent:
		return s.send(ctx, eventAnswer, answerMsg{Question: p.Question, Answer: p.Answer, PersonaName: s.persona.FirstName()})
	case agent.ErrorEvent:
		s.running.Store(false)
		return s.send(ctx, eventError, errorMsg{Message: p.Message})
	default:
		return fmt.Errorf("unexpected event %s", ev.Kind)
	}
}

func (s *Session) input(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if s.browser == nil {
		return errNoBrowser
	}
	if err := s.status(ctx, "Thinking..."); err != nil {
		return err
	}
	kind, content, err := s.guide.Classify(ctx, text)
	if err != nil {
		return err
	}
	if kind == tools.InputQuestion {
		return s.ask(ctx, text)
	}

	if err := s.status(ctx, "Navigating..."); err != nil {
		return err
	}
	res, err := s.guide.Execute(ctx, content, s.url, s.category)
	if err != nil {
		return err
	}
	capt := res.Capture
	if capt.Screenshot.Empty() {
		if capt.Screenshot, err = s.browser.Screenshot(ctx); err != nil {
			return err
		}
		capt.URL = s.browser.URL()
	}
	return s.arrive(ctx, capt, false)
}

func (s *Session) ask(ctx context.Context, question string) error {
	s.history.Question(question)
	answer, err := s.narrator.Answer(ctx, s.shot, question)
	if err != nil {
		return err
	}
	s.history.Answer(answer)
	return s.send(ctx, eventAnswer, answerMsg{Question: question, Answer: answer, PersonaName: s.persona.FirstName()})
}

// highlight asks the persona about an area of the current screenshot.
func (s *Session) highlight(ctx context.Context, msg inbound) error {
	if s.browser == nil {
		return errNoBrowser
	}
	if err := s.status(ctx, "Looking at the highlighted area..."); err != nil {
		return err
	}
	area, err := s.shot.Crop(int(msg.X1), int(msg.Y1), int(msg.X2), int(msg.Y2))
	if err != nil {
		s.logger.Warn().Err(err).Msg("crop failed, showing the whole page")
		area = s.shot
	}
	question := strings.TrimSpace(msg.Question)
	label := question
	if label == "" {
		label = persona.DefaultHighlightQuestion
	}

	s.history.Question("[Highlighted area] " + label)
	answer, err := s.narrator.Answer(ctx, area, persona.HighlightPrompt(question))
	if err != nil {
		return err
	}
	s.history.Answer(answer)
	return s.send(ctx, eventHighlight, highlightMsg{
		Question:    label,
		Answer:      answer,
		PersonaName: s.persona.FirstName(),
		History:     s.history.Entries(),
	})
}

func (s *Session) comment(ctx context.Context) error {
	if s.browser == nil {
		return errNoBrowser
	}
	if err := s.status(ctx, "The persona is commenting..."); err != nil {
		return err
	}
	text, err := s.narrator.Comment(ctx, s.shot, s.category)
	if err != nil {
		return err
	}
	s.history.Comment(text)
	return s.send(ctx, eventComment, commentMsg{Comment: text, PersonaName: s.persona.FirstName()})
}

func (s *Session) navigateURL(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	if s.browser == nil {
		return errNoBrowser
	}
	if err := s.status(ctx, "Navigating..."); err != nil {
		return err
	}
	capt, err := s.browser.Navigate(ctx, url)
	if err != nil {
		return err
	}
	return s.arrive(ctx, capt, true)
}

// clickAt is a silent click on the live view; the page is only
// re-classified when the URL changed.
func (s *Session) clickAt(ctx context.Context, x, y float64) error {
	if s.browser == nil {
		return errNoBrowser
	}
	capt, err := s.browser.ClickAt(ctx, x, y)
	if err != nil {
		return err
	}
	if capt.URL == s.url {
		s.view(capt, s.category)
		s.history.Navigation(s.category, capt.URL, capt.Screenshot)
		return s.sendNavigation(ctx)
	}
	return s.arrive(ctx, capt, false)
}

func (s *Session) scroll(ctx context.Context, delta int) error {
	if s.browser == nil {
		return errNoBrowser
	}
	capt, err := s.browser.ScrollBy(ctx, delta)
	if err != nil {
		return err
	}
	s.view(capt, s.category)
	return s.send(ctx, eventScreenshot, screenshotMsg{Screenshot: capt.Screenshot.Base64(), URL: capt.URL})
}

func (s *Session) setViewport(ctx context.Context, name string) error {
	if s.browser == nil {
		return errNoBrowser
	}
	vp, ok := browser.ViewportByName(name)
	if !ok {
		return fmt.Errorf("unknown viewport %q", name)
	}
	if vp.Name == s.browser.Viewport().Name {
		return nil
	}
	if err := s.status(ctx, "Switching to "+vp.Name+" view..."); err != nil {
		return err
	}
	capt, err := s.browser.SetViewport(ctx, vp)
	if err != nil {
		return err
	}
	return s.arrive(ctx, capt, false)
}

func (s *Session) insights(ctx context.Context) error {
	if s.narrator == nil || !s.narrator.HasTranscript() {
		return errNoTranscript
	}
	if err := s.status(ctx, "Generating insights..."); err != nil {
		return err
	}
	text, err := agent.Insights(ctx, s.llm, s.persona, s.siteContext, s.history.Entries())
	if err != nil {
		return err
	}
	return s.send(ctx, eventInsights, insightsMsg{Content: text, PersonaName: s.persona.Name})
}

func (s *Session) export(ctx context.Context, msg inbound) error {
	mode := s.mode
	if msg.Mode != "" {
		mode = parseMode(msg.Mode)
	}
	objective := s.objective.Label
	if msg.Objective != "" {
		objective = s.deps.Personas.Objective(msg.Objective).Label
	}
	md := export.Markdown(export.Report{
		Date:      time.Now(),
		Site:      s.url,
		Persona:   s.persona.Name,
		Mode:      mode,
		Objective: objective,
		Entries:   s.history.Entries(),
	})
	return s.send(ctx, eventExport, exportMsg{Markdown: md})
}

func (s *Session) sendNavigation(ctx context.Context) error {
	vp := s.browser.Viewport()
	return s.send(ctx, eventNavigation, navigationMsg{
		Screenshot:  s.shot.Base64(),
		URL:         s.url,
		PageType:    string(s.category),
		PageLabel:   s.category.Label(),
		PersonaName: s.persona.FirstName(),
		Suggestions: s.deps.Personas.Suggestions(string(s.category)),
		Step:        s.state.Step(),
		MaxSteps:    s.state.MaxSteps(),
		Viewport:    vp.Name,
		VPWidth:     vp.Width,
		VPHeight:    vp.Height,
		History:     s.history.Entries(),
	})
}

func (s *Session) status(ctx context.Context, msg string) error {
	return s.send(ctx, eventStatus, statusMsg{Message: msg})
}

// send writes one event. Writes outlive ctx cancellation by at most
// writeTimeout so final events still reach the operator.
func (s *Session) send(ctx context.Context, event string, payload any) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (s *Session) closeBrowser() {
	if s.browser == nil {
		return
	}
	if err := s.browser.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close browser")
	}
	s.browser = nil
	s.guide = nil
}
