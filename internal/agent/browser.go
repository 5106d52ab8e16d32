package agent

import (
	"context"

	"github.com/polzovatel/persona-navigator/internal/snapshot"
)

// Capture is the page as it looks after a browser action.
type Capture struct {
	Screenshot snapshot.Screenshot
	URL        string
}

// Browser is the page driver a Navigator owns for its whole run.
// Implementations absorb element-not-found and load timeouts; a returned
// error means the browser itself is gone.
type Browser interface {
	Navigate(ctx context.Context, url string) (Capture, error)
	// ClickElement clicks by CSS selector or free-text label. ok is false
	// when nothing matched.
	ClickElement(ctx context.Context, descriptor string) (ok bool, c Capture, err error)
	ScrollDown(ctx context.Context) (Capture, error)
	ScrollUp(ctx context.Context) (Capture, error)
	GoBack(ctx context.Context) (Capture, error)
	Screenshot(ctx context.Context) (snapshot.Screenshot, error)
	URL() string
}

// Recorder observes navigator activity, typically for metrics.
type Recorder interface {
	Step(action ActionKind)
	OracleFallback()
	ClickFallback()
	Finished(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Step(ActionKind) {}
func (nopRecorder) OracleFallback() {}
func (nopRecorder) ClickFallback() {}
func (nopRecorder) Finished(string) {}
