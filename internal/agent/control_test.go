package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanControlsPoll(t *testing.T) {
	ch := make(chan Signal, 1)
	c := ChanControls(ch)

	_, ok, err := c.Poll(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	ch <- Signal{Kind: SignalQuestion, Text: "why?"}
	sig, ok, err := c.Poll(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Signal{Kind: SignalQuestion, Text: "why?"}, sig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.Poll(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChanControlsClosedMeansStop(t *testing.T) {
	ch := make(chan Signal)
	close(ch)
	sig, err := ChanControls(ch).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SignalStop, sig.Kind)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.True(t, StatusStopped.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.Equal(t, "PAUSED", StatusPaused.String())
	assert.Equal(t, "question", SignalQuestion.String())
}

func TestTerminalStatusIsSticky(t *testing.T) {
	n := NewNavigator(Config{MaxSteps: 1}, newFakeBrowser(nil), scripted(done()), &recordingSink{})
	n.setStatus(StatusDone)
	n.setStatus(StatusRunning)
	assert.Equal(t, StatusDone, n.Status())
}

func TestHistoryOrder(t *testing.T) {
	h := NewHistory()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	h.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	h.Navigation(CategoryHomepage, "https://site.test/", nil)
	h.Comment("hi")
	h.Action(ActionScrollDown, "", "more")

	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []EntryKind{EntryNavigation, EntryComment, EntryAction},
		[]EntryKind{entries[0].Kind, entries[1].Kind, entries[2].Kind})
	assert.True(t, entries[0].At.Before(entries[2].At))
	assert.Equal(t, 3, h.Len())
}
