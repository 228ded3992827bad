package playback

import (
	"context"
	"time"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Output is the single audio output resource owned by the controller.
//
// Command methods must not call the Listener synchronously; events are
// delivered from the output's own goroutines. Events belonging to a source
// that was replaced by a later Load or Unload must be dropped.
type Output interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	Unload() error
	SetListener(l Listener)
}

// Listener receives events from an Output.
type Listener interface {
	// OnReady reports that metadata is available. duration is 0 when unknown.
	OnReady(duration time.Duration)
	OnPlay()
	// OnPause reports a pause that was not caused by reaching the end.
	OnPause()
	OnTimeUpdate(pos time.Duration)
	OnEnded()
	// OnError reports a failure of the current source, preferably a *MediaError.
	OnError(err error)
}

// Resolver turns a track whose source needs resolution into a playable URL.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (string, error)
}

// LikeStore persists the set of liked track IDs.
type LikeStore interface {
	Toggle(trackID string) (bool, error)
	Contains(trackID string) bool
	IDs() []string
}

// outputListener adapts Output events to controller transitions.
type outputListener struct {
	c *Controller
}

func (l outputListener) OnReady(d time.Duration)        { l.c.handleReady(d) }
func (l outputListener) OnPlay()                        { l.c.handlePlay() }
func (l outputListener) OnPause()                       { l.c.handlePause() }
func (l outputListener) OnTimeUpdate(pos time.Duration) { l.c.handleTimeUpdate(pos) }
func (l outputListener) OnEnded()                       { l.c.handleEnded() }
func (l outputListener) OnError(err error)              { l.c.handleError(err) }
