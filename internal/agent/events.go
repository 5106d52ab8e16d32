package agent

import (
	"context"

	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

type EventKind string

const (
	EventStatus EventKind = "status"
	EventStep   EventKind = "autonomous_step"
	EventDone   EventKind = "autonomous_done"
	EventAnswer EventKind = "answer"
	EventError  EventKind = "error"
)

type DoneReason string

const (
	ReasonStopped  DoneReason = "stopped"
	ReasonDone     DoneReason = "done"
	ReasonMaxSteps DoneReason = "max_steps"
)

// Event is something the presentation layer should show. Payload is one of
// StatusEvent, StepEvent, DoneEvent, AnswerEvent or ErrorEvent.
type Event struct {
	Kind    EventKind
	Payload any
}

type StatusEvent struct {
	Message string `json:"message"`
}

type StepEvent struct {
	Screenshot snapshot.Screenshot `json:"-"`
	URL        string              `json:"url"`
	Category   PageCategory        `json:"page_type"`
	Comment    string              `json:"comment"`
	Action     ActionKind          `json:"action"`
	Target     string              `json:"target"`
	Reasoning  string              `json:"reasoning"`
	Step       int                 `json:"step"`
	MaxSteps   int                 `json:"max_steps"`
}

type DoneEvent struct {
	Reason DoneReason `json:"reason"`
}

type AnswerEvent struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// Sink receives events in emission order. An error from Emit ends the run.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }
