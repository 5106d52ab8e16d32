package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/persona-navigator/internal/agent"
	"github.com/polzovatel/persona-navigator/internal/llm"
)

func TestRecorder(t *testing.T) {
	c := NewCollector()
	c.Step(agent.ActionClick)
	c.Step(agent.ActionClick)
	c.Step(agent.ActionDone)
	c.OracleFallback()
	c.ClickFallback()
	c.Finished(string(agent.ReasonMaxSteps))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.steps.WithLabelValues("CLICK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.steps.WithLabelValues("DONE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.oracleFallback))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.clickFallback))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("max_steps")))
}

func TestActiveSessions(t *testing.T) {
	c := NewCollector()
	closeA := c.SessionOpened()
	closeB := c.SessionOpened()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeSessions))
	closeA()
	closeB()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeSessions))
}

type fixedLLM struct{ err error }

func (f fixedLLM) Name() string { return "fixed" }

func (f fixedLLM) Generate(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "ok"}, f.err
}

func TestInstrumentLLM(t *testing.T) {
	c := NewCollector()
	ok := c.InstrumentLLM(fixedLLM{})
	bad := c.InstrumentLLM(fixedLLM{err: errors.New("down")})

	_, err := ok.Generate(context.Background(), llm.Request{})
	require.NoError(t, err)
	_, err = bad.Generate(context.Background(), llm.Request{})
	require.Error(t, err)

	assert.Equal(t, "fixed", ok.Name())
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("fixed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("fixed", "error")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	c := NewCollector()
	c.Step(agent.ActionBack)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `navigator_steps_total{action="BACK"} 1`)
}
