package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/persona-navigator/internal/agent"
)

func TestReadControls(t *testing.T) {
	out := make(chan agent.Signal, 8)
	done := make(chan struct{})
	defer close(done)

	readControls(strings.NewReader("p\n\n  Would you book?  \nR\nstop"), out, done)

	require.Len(t, out, 4)
	assert.Equal(t, agent.Signal{Kind: agent.SignalPause}, <-out)
	assert.Equal(t, agent.Signal{Kind: agent.SignalQuestion, Text: "Would you book?"}, <-out)
	assert.Equal(t, agent.Signal{Kind: agent.SignalResume}, <-out)
	assert.Equal(t, agent.Signal{Kind: agent.SignalStop}, <-out)
}

func TestReadControlsReturnsAfterRunEnds(t *testing.T) {
	out := make(chan agent.Signal) // nobody receives once the run is over
	done := make(chan struct{})
	close(done)

	finished := make(chan struct{})
	go func() {
		readControls(strings.NewReader("p\nr\ns\n"), out, done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("readControls blocked on a finished run")
	}
}
