package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/browser"
	"github.com/polzovatel/persona-navigator/internal/config"
	"github.com/polzovatel/persona-navigator/internal/export"
	"github.com/polzovatel/persona-navigator/internal/llm"
	"github.com/polzovatel/persona-navigator/internal/metrics"
	"github.com/polzovatel/persona-navigator/internal/persona"
	"github.com/polzovatel/persona-navigator/internal/session"
)

type cliOptions struct {
	serve       bool
	url         string
	persona     string
	profile     string
	objective   string
	siteContext string
	report      string
	logFile     string
	origins     string
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	opts := parseFlags(&cfg)

	closeLog := setupLogging(cfg.Level(), opts.logFile)
	err = run(cfg, opts)
	if err != nil {
		log.Error().Err(err).Msg("run finished with error")
	}
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, opts cliOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	if !opts.serve && opts.url == "" {
		url, cancelled, err := promptURL(stdin)
		if err != nil {
			return fmt.Errorf("prompt url: %w", err)
		}
		if cancelled {
			fmt.Println("Cancelled.")
			return nil
		}
		opts.url = url
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := persona.LoadFile(cfg.PersonasFile)
	if err != nil {
		return err
	}
	client, err := llm.NewClient(ctx, cfg.Provider, log.With().Str("comp", "llm").Logger())
	if err != nil {
		return fmt.Errorf("llm init: %w", err)
	}
	launcher, err := browser.NewLauncher(ctx, cfg.Headless, log.With().Str("comp", "browser").Logger())
	if err != nil {
		return fmt.Errorf("browser init: %w", err)
	}
	defer launcher.Close()
	vp, _ := browser.ViewportByName(cfg.Viewport)

	if opts.serve {
		return serve(ctx, cfg, opts, registry, client, launcher, vp)
	}
	return runOnce(ctx, cfg, opts, registry, client, launcher, vp, stdin)
}

func parseFlags(cfg *config.Config) cliOptions {
	var opts cliOptions
	flag.BoolVar(&opts.serve, "serve", false, "Run the websocket server instead of a single session")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address for -serve")
	flag.StringVar(&opts.origins, "origins", "", "Comma separated websocket origin patterns")
	flag.StringVar(&opts.url, "url", "", "Site to explore")
	flag.StringVar(&opts.persona, "persona", "marco", "Persona id")
	flag.StringVar(&opts.profile, "profile", "", "Extra persona traits")
	flag.StringVar(&opts.objective, "objective", "first_impression", "Objective id")
	flag.StringVar(&opts.siteContext, "site-context", "", "What the site offers, shown to the persona")
	flag.StringVar(&opts.report, "report", "", "Write a markdown report to this path")
	flag.IntVar(&cfg.MaxSteps, "max-steps", cfg.MaxSteps, "Max navigation steps")
	flag.DurationVar(&cfg.StepDelay, "step-delay", cfg.StepDelay, "Pause between steps")
	flag.StringVar(&cfg.Viewport, "viewport", cfg.Viewport, "desktop or mobile")
	flag.StringVar(&cfg.Provider, "provider", cfg.Provider, "LLM provider: gemini, anthropic or openai")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run Chromium headless")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flag.StringVar(&opts.logFile, "log-file", "", "Write JSON logs to this rotating file instead of the console")
	flag.Parse()
	opts.url = strings.TrimSpace(opts.url)
	return opts
}

func setupLogging(level zerolog.Level, file string) func() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	if file == "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return func() {}
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	log.Logger = zerolog.New(rotating).With().Timestamp().Logger()
	return func() { _ = rotating.Close() }
}

func serve(ctx context.Context, cfg config.Config, opts cliOptions, registry *persona.Registry, client llm.Client, launcher *browser.Launcher, vp browser.Viewport) error {
	var origins []string
	for _, o := range strings.Split(opts.origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	srv := session.NewServer(session.Deps{
		LLM:      client,
		Personas: registry,
		Browsers: func(ctx context.Context, vp browser.Viewport) (session.Browser, error) {
			ctrl, err := launcher.Open(ctx, vp)
			if err != nil {
				return nil, err
			}
			return ctrl, nil
		},
		Metrics: metrics.NewCollector(),
		Settings: session.Settings{
			MaxSteps:    cfg.MaxSteps,
			StepDelay:   cfg.StepDelay,
			PollTimeout: cfg.PollTimeout,
			OracleRPS:   cfg.OracleRPS,
			Viewport:    vp,
		},
		Logger: log.With().Str("comp", "session").Logger(),
	}, origins...)
	return srv.ListenAndServe(ctx, cfg.Addr)
}

func runOnce(ctx context.Context, cfg config.Config, opts cliOptions, registry *persona.Registry, client llm.Client, launcher *browser.Launcher, vp browser.Viewport, stdin *bufio.Reader) error {
	p, err := registry.Get(opts.persona)
	if err != nil {
		return err
	}
	if opts.profile != "" {
		p = persona.Customize(p, opts.profile)
	}
	objective := registry.Objective(opts.objective)

	ctrl, err := launcher.Open(ctx, vp)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	model := llm.Throttle(client, cfg.OracleRPS, 1)
	signals := make(chan agent.Signal, 8)
	done := make(chan struct{})
	defer close(done)
	go readControls(stdin, signals, done)

	history := agent.NewHistory()
	nav := agent.NewNavigator(agent.Config{
		MaxSteps:    cfg.MaxSteps,
		StepDelay:   cfg.StepDelay,
		PollTimeout: cfg.PollTimeout,
		Persona:     p,
		Objective:   objective.Prompt,
		SiteContext: opts.siteContext,
	}, ctrl, agent.NewOracle(model, log.With().Str("comp", "oracle").Logger()), terminalSink(os.Stdout, p),
		agent.WithControls(agent.ChanControls(signals)),
		agent.WithResponder(agent.NewNarrator(model, p, opts.siteContext)),
		agent.WithHistory(history),
		agent.WithLogger(log.With().Str("comp", "navigator").Logger()),
	)

	fmt.Printf("%s is exploring %s (%s). Type a question, p to pause, r to resume, s to stop.\n", p.FirstName(), opts.url, objective.Label)
	if _, err := nav.Run(ctx, opts.url); err != nil {
		return err
	}
	if opts.report == "" {
		return nil
	}
	md := export.Markdown(export.Report{
		Date:      time.Now(),
		Site:      opts.url,
		Persona:   p.Name,
		Mode:      export.ModeAutonomous,
		Objective: objective.Label,
		Entries:   history.Entries(),
	})
	if err := os.WriteFile(opts.report, []byte(md), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info().Str("path", opts.report).Msg("report saved")
	return nil
}

// readControls turns terminal lines into navigator signals until done is
// closed. The channel is left open at EOF so a closed stdin does not stop
// the run.
func readControls(r io.Reader, out chan<- agent.Signal, done <-chan struct{}) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if sig, ok := controlSignal(line); ok {
			select {
			case out <- sig:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func controlSignal(line string) (agent.Signal, bool) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return agent.Signal{}, false
	case "p", "pause":
		return agent.Signal{Kind: agent.SignalPause}, true
	case "r", "resume":
		return agent.Signal{Kind: agent.SignalResume}, true
	case "s", "stop":
		return agent.Signal{Kind: agent.SignalStop}, true
	default:
		return agent.Signal{Kind: agent.SignalQuestion, Text: line}, true
	}
}

func terminalSink(w io.Writer, p persona.Persona) agent.Sink {
	name := p.FirstName()
	return agent.SinkFunc(func(_ context.Context, ev agent.Event) error {
		var err error
		switch e := ev.Payload.(type) {
		case agent.StatusEvent:
			_, err = fmt.Fprintf(w, "... %s\n", e.Message)
		case agent.StepEvent:
			_, err = fmt.Fprintf(w, "\n[%d/%d] %s  %s\n%s: %q\n-> %s %s (%s)\n",
				e.Step, e.MaxSteps, e.Category.Label(), e.URL, name, e.Comment, e.Action, e.Target, e.Reasoning)
		case agent.AnswerEvent:
			_, err = fmt.Fprintf(w, "\nQ: %s\n%s: %s\n", e.Question, name, e.Answer)
		case agent.DoneEvent:
			_, err = fmt.Fprintf(w, "\nFinished: %s\n", e.Reason)
		case agent.ErrorEvent:
			_, err = fmt.Fprintf(w, "\nError: %s\n", e.Message)
		}
		return err
	})
}

func promptURL(r *bufio.Reader) (string, bool, error) {
	fmt.Print("Site URL (leave empty to cancel): ")
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", true, nil
	}
	return line, false, nil
}
