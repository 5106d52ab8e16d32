package agent

import (
	"context"
	"time"
)

type SignalKind int

const (
	SignalStop SignalKind = iota
	SignalPause
	SignalResume
	SignalQuestion
)

func (k SignalKind) String() string {
	switch k {
	case SignalStop:
		return "stop"
	case SignalPause:
		return "pause"
	case SignalResume:
		return "resume"
	case SignalQuestion:
		return "question"
	default:
		return "unknown"
	}
}

// Signal is an operator interrupt. Text is set for questions.
type Signal struct {
	Kind SignalKind
	Text string
}

// Controls delivers operator signals to a running navigator.
type Controls interface {
	// Poll waits at most timeout for a signal; ok is false when none arrived.
	Poll(ctx context.Context, timeout time.Duration) (sig Signal, ok bool, err error)
	// Wait blocks until a signal arrives.
	Wait(ctx context.Context) (Signal, error)
}

// ChanControls reads signals from a channel. A closed channel reads as stop.
type ChanControls <-chan Signal

func (c ChanControls) Poll(ctx context.Context, timeout time.Duration) (Signal, bool, error) {
	if timeout <= 0 {
		select {
		case sig, open := <-c:
			return closedAsStop(sig, open), true, nil
		default:
			return Signal{}, false, ctx.Err()
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case sig, open := <-c:
		return closedAsStop(sig, open), true, nil
	case <-t.C:
		return Signal{}, false, nil
	case <-ctx.Done():
		return Signal{}, false, ctx.Err()
	}
}

func (c ChanControls) Wait(ctx context.Context) (Signal, error) {
	select {
	case sig, open := <-c:
		return closedAsStop(sig, open), nil
	case <-ctx.Done():
		return Signal{}, ctx.Err()
	}
}

func closedAsStop(sig Signal, open bool) Signal {
	if !open {
		return Signal{Kind: SignalStop}
	}
	return sig
}

type noControls struct{}

func (noControls) Poll(ctx context.Context, timeout time.Duration) (Signal, bool, error) {
	if timeout <= 0 {
		return Signal{}, false, ctx.Err()
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-t.C:
		return Signal{}, false, nil
	case <-ctx.Done():
		return Signal{}, false, ctx.Err()
	}
}

func (noControls) Wait(ctx context.Context) (Signal, error) {
	<-ctx.Done()
	return Signal{}, ctx.Err()
}
