// Package metrics exposes navigator activity to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/llm"
)

const namespace = "navigator"

// Collector owns its registry so several can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	steps          *prometheus.CounterVec
	oracleFallback prometheus.Counter
	clickFallback  prometheus.Counter
	outcomes       *prometheus.CounterVec
	activeSessions prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Autonomous navigation steps by executed action",
		}, []string{"action"}),
		oracleFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_fallbacks_total",
			Help:      "Decisions replaced by DONE because the model output was unparseable",
		}),
		clickFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "click_fallbacks_total",
			Help:      "Clicks that matched nothing and scrolled instead",
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Autonomous runs by termination reason",
		}, []string{"reason"}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open operator sessions",
		}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model calls by model and status",
		}, []string{"model", "status"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model call latency",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
	}
}

var _ agent.Recorder = (*Collector)(nil)

func (c *Collector) Step(action agent.ActionKind) { c.steps.WithLabelValues(string(action)).Inc() }

func (c *Collector) OracleFallback() { c.oracleFallback.Inc() }

func (c *Collector) ClickFallback() { c.clickFallback.Inc() }

func (c *Collector) Finished(outcome string) { c.outcomes.WithLabelValues(outcome).Inc() }

// SessionOpened increments the active gauge and returns its decrement.
func (c *Collector) SessionOpened() (closed func()) {
	c.activeSessions.Inc()
	return c.activeSessions.Dec
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// InstrumentLLM counts and times every call made through next.
func (c *Collector) InstrumentLLM(next llm.Client) llm.Client {
	return &instrumented{next: next, c: c}
}

type instrumented struct {
	next llm.Client
	c    *Collector
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	start := time.Now()
	resp, err := i.next.Generate(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	model := i.next.Name()
	i.c.llmRequests.WithLabelValues(model, status).Inc()
	i.c.llmDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	return resp, err
}
