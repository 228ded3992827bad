package playback

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/domain/track"
)

const noticeBufferSize = 10

// Config holds controller configuration.
type Config struct {
	RetryDelay time.Duration   // Delay before the automatic reload after a failure
	MaxRetries int             // Automatic reloads per track, clamped to [0, 1]
	Rand       func(n int) int // Shuffle source returning [0, n); nil uses math/rand
}

// Controller owns the audio output and is the only writer of the playback session.
type Controller struct {
	mu sync.Mutex

	// Collaborators
	out      Output
	resolver Resolver
	likes    LikeStore
	config   Config
	intn     func(n int) int

	// Session state
	current       *track.Track
	queue         []track.Track
	phase         Phase
	intent        bool // Playback wanted by the user; survives a pending retry
	position      time.Duration
	duration      time.Duration
	durationKnown bool
	loop          bool
	shuffle       bool
	lastErr       error
	version       uint64

	// Load sequence
	gen           uint64        // Incremented per load sequence; async continuations compare against it
	attempts      int           // Automatic retries used for the current track
	resumeAt      time.Duration // Position restored once a reload is ready
	sourceLoaded  bool          // Output holds a source
	resolveCancel context.CancelFunc
	retryTimer    *time.Timer

	// Observation
	observers *observerHub
	noticeCh  chan Notice

	// Context
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewController creates a playback controller and registers it as the
// output's listener. likes may be nil, in which case likes are kept in memory.
func NewController(out Output, resolver Resolver, likes LikeStore, config Config) *Controller {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxRetries > 1 {
		config.MaxRetries = 1
	}
	intn := config.Rand
	if intn == nil {
		intn = rand.IntN
	}
	if likes == nil {
		likes = newMemoryLikes()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		out:       out,
		resolver:  resolver,
		likes:     likes,
		config:    config,
		intn:      intn,
		phase:     PhaseIdle,
		observers: newObserverHub(),
		noticeCh:  make(chan Notice, noticeBufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	out.SetListener(outputListener{c: c})
	return c
}

// Subscribe registers an observer called after every session change.
func (c *Controller) Subscribe(fn Observer) string {
	return c.observers.subscribe(fn)
}

// Unsubscribe removes an observer.
func (c *Controller) Unsubscribe(id string) {
	c.observers.unsubscribe(id)
}

// Notices returns the channel of failures surfaced after retries are exhausted.
func (c *Controller) Notices() <-chan Notice {
	return c.noticeCh
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Play selects t and starts playing it. A non-empty queue replaces the
// current queue. Load failures are reported asynchronously.
func (c *Controller) Play(t track.Track, queue []track.Track) error {
	if !t.IsPlayable() {
		return errors.Wrapf(ErrInvalidTrack, "track %q", t.ID)
	}

	c.update(func() bool {
		if len(queue) > 0 {
			c.queue = append([]track.Track(nil), queue...)
		}
		c.intent = true

		if c.current == nil || c.current.ID != t.ID {
			c.switchTrackLocked(t)
			return true
		}

		// Same track: resume rather than reload
		switch {
		case c.phase == PhaseFailed && c.retryTimer == nil:
			c.restartLocked()
		case c.phase == PhaseReady || c.phase == PhasePaused:
			c.startOutputLocked()
		}
		return true
	})
	return nil
}

// TogglePlay pauses when playing and resumes otherwise.
// Without a current track it does nothing.
func (c *Controller) TogglePlay() {
	c.update(func() bool {
		if c.current == nil {
			zlog.Debug().Msg("playback: toggle ignored, no track selected")
			return false
		}

		// Retry pending: only flip whether the reload should start audibly
		if c.phase == PhaseFailed && c.retryTimer != nil {
			c.intent = !c.intent
			return true
		}

		if c.isPlayingLocked() {
			c.intent = false
			if c.phase == PhasePlaying || c.phase == PhaseStarting {
				if err := c.out.Pause(); err != nil {
					zlog.Warn().Err(err).Msg("playback: output pause failed")
				}
				c.phase = PhasePaused
			}
			return true
		}

		c.intent = true
		switch c.phase {
		case PhaseReady, PhasePaused:
			c.startOutputLocked()
		case PhaseFailed:
			c.restartLocked()
		}
		return true
	})
}

// Next moves forward in the queue (randomly when shuffle is on).
// It does nothing when the queue is empty or does not contain the current track.
func (c *Controller) Next() {
	c.update(func() bool {
		return c.advanceLocked()
	})
}

// Prev moves back one entry in the queue, wrapping to the end. Shuffle does
// not affect it.
func (c *Controller) Prev() {
	c.update(func() bool {
		if c.current == nil {
			return false
		}
		idx := track.IndexOf(c.queue, c.current.ID)
		if idx < 0 {
			return false
		}
		c.gotoLocked(prevIndex(idx, len(c.queue)))
		return true
	})
}

// Seek moves to ratio of the track duration. ratio is clamped to [0, 1].
// It does nothing until the duration is known and the source is ready.
func (c *Controller) Seek(ratio float64) {
	if math.IsNaN(ratio) {
		return
	}
	ratio = math.Max(0, math.Min(1, ratio))

	c.update(func() bool {
		if c.current == nil || !c.durationKnown || !c.phase.hasSource() {
			zlog.Debug().Msg("playback: seek ignored, source not seekable")
			return false
		}
		pos := time.Duration(ratio * float64(c.duration))
		if err := c.out.Seek(pos); err != nil {
			zlog.Warn().Err(err).Msgf("playback: seek failed: pos=%v", pos)
			return false
		}
		c.position = pos
		return true
	})
}

// ToggleLoop flips track repeat and returns the new value.
func (c *Controller) ToggleLoop() bool {
	var enabled bool
	c.update(func() bool {
		c.loop = !c.loop
		enabled = c.loop
		return true
	})
	return enabled
}

// ToggleShuffle flips random forward navigation and returns the new value.
func (c *Controller) ToggleShuffle() bool {
	var enabled bool
	c.update(func() bool {
		c.shuffle = !c.shuffle
		enabled = c.shuffle
		return true
	})
	return enabled
}

// ToggleLike flips whether trackID is liked and returns the new state.
func (c *Controller) ToggleLike(trackID string) (bool, error) {
	if trackID == "" {
		return false, errors.Wrap(ErrInvalidTrack, "like")
	}
	liked, err := c.likes.Toggle(trackID)
	if err != nil {
		return false, errors.Wrapf(err, "failed to toggle like for %s", trackID)
	}
	c.update(func() bool {
		return c.current != nil && c.current.ID == trackID
	})
	return liked, nil
}

// IsLiked reports whether trackID is liked.
func (c *Controller) IsLiked(trackID string) bool {
	return c.likes.Contains(trackID)
}

// LikedIDs returns all liked track IDs.
func (c *Controller) LikedIDs() []string {
	return c.likes.IDs()
}

// Stop clears the output and resets the session to its initial state.
// Safe to call at any time, including repeatedly.
func (c *Controller) Stop() {
	c.update(func() bool {
		empty := c.current == nil && c.phase == PhaseIdle && len(c.queue) == 0 &&
			!c.loop && !c.shuffle && !c.sourceLoaded
		c.stopLocked()
		return !empty
	})
}

// Close stops playback and releases observers and the notice channel.
func (c *Controller) Close() {
	c.Stop()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	close(c.noticeCh)
	c.mu.Unlock()

	c.observers.close()
}

// update runs fn under the lock and publishes a snapshot when fn reports a change.
func (c *Controller) update(fn func() bool) {
	c.mu.Lock()
	if c.closed || !fn() {
		c.mu.Unlock()
		return
	}
	c.version++
	s := c.snapshotLocked()
	c.mu.Unlock()

	c.observers.broadcast(s)
}

func (c *Controller) snapshotLocked() Session {
	s := Session{
		Version:       c.version,
		Phase:         c.phase,
		IsPlaying:     c.isPlayingLocked(),
		Position:      c.position,
		Duration:      c.duration,
		DurationKnown: c.durationKnown,
		Loop:          c.loop,
		Shuffle:       c.shuffle,
		Err:           c.lastErr,
	}
	if c.current != nil {
		t := *c.current
		s.Track = &t
		s.Liked = c.likes.Contains(t.ID)
	}
	if len(c.queue) > 0 {
		s.Queue = append([]track.Track(nil), c.queue...)
	}
	return s
}

func (c *Controller) isPlayingLocked() bool {
	return c.intent && c.current != nil && c.phase != PhaseFailed
}

// switchTrackLocked makes t the current track and starts its load sequence.
func (c *Controller) switchTrackLocked(t track.Track) {
	c.cancelPendingLocked()

	c.current = &t
	c.position = 0
	c.duration = 0
	c.durationKnown = false
	c.attempts = 0
	c.resumeAt = 0
	c.lastErr = nil

	zlog.Debug().Msgf("playback: switching track: track=%s source=%s", t.ID, t.Source.Kind)
	c.beginLoadLocked()
}

// restartLocked reloads the current track after a failure, keeping its position.
func (c *Controller) restartLocked() {
	c.cancelPendingLocked()
	c.attempts = 0
	c.lastErr = nil
	c.resumeAt = c.position
	c.beginLoadLocked()
}

// beginLoadLocked starts a new load sequence for the current track. The
// previous source is released first so that it cannot stay audible while the
// new one resolves.
func (c *Controller) beginLoadLocked() {
	c.releaseSourceLocked()
	c.gen++
	gen := c.gen
	t := *c.current
	c.phase = PhaseResolving

	if !t.Source.NeedsResolution() {
		c.loadLocked(t.Source.URL)
		return
	}

	if c.resolver == nil {
		c.failLocked(resolutionFailure(t, errors.New("no resolver configured")))
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.resolveCancel = cancel
	go c.resolve(ctx, cancel, gen, t)
}

// resolve runs the catalog round-trip outside the lock.
func (c *Controller) resolve(ctx context.Context, cancel context.CancelFunc, gen uint64, t track.Track) {
	defer cancel()

	url, err := c.resolver.Resolve(ctx, t)

	c.update(func() bool {
		if gen != c.gen {
			zlog.Debug().Msgf("playback: discarding superseded resolution: track=%s", t.ID)
			return false
		}
		c.resolveCancel = nil
		if err != nil {
			c.failLocked(resolutionFailure(t, err))
			return true
		}
		c.loadLocked(url)
		return true
	})
}

func (c *Controller) loadLocked(url string) {
	c.phase = PhaseLoading
	c.sourceLoaded = true
	if err := c.out.Load(url); err != nil {
		c.failLocked(playbackFailure(*c.current, err))
	}
}

// startOutputLocked asks the output to play. On refusal the intent is rolled back.
func (c *Controller) startOutputLocked() {
	c.phase = PhaseStarting
	if err := c.out.Play(); err != nil {
		zlog.Warn().Err(err).Msgf("playback: output refused to start: track=%s", c.current.ID)
		c.intent = false
		c.phase = PhasePaused
	}
}

// failLocked records a failure and schedules the automatic retry if one is left.
func (c *Controller) failLocked(err error) {
	c.lastErr = err
	if c.phase.hasSource() {
		c.resumeAt = c.position
	}
	c.phase = PhaseFailed

	if c.attempts < c.config.MaxRetries {
		c.attempts++
		gen := c.gen
		reason := "load failed"
		if IsStaleSource(err) {
			reason = "source went stale"
		}
		zlog.Warn().Err(err).Msgf("playback: %s, re-resolving: track=%s attempt=%d delay=%v",
			reason, c.current.ID, c.attempts, c.config.RetryDelay)
		c.retryTimer = time.AfterFunc(c.config.RetryDelay, func() {
			c.retry(gen)
		})
		return
	}

	c.intent = false
	zlog.Error().Err(err).Msgf("playback: giving up on track: track=%s", c.current.ID)
	c.sendNoticeLocked(Notice{Track: *c.current, Err: err})
}

// retry re-runs the whole load sequence, including resolution, so that a
// stale stream token is reissued.
func (c *Controller) retry(gen uint64) {
	c.update(func() bool {
		if gen != c.gen || c.phase != PhaseFailed || c.retryTimer == nil {
			return false
		}
		c.retryTimer = nil
		c.beginLoadLocked()
		return true
	})
}

func (c *Controller) cancelPendingLocked() {
	if c.resolveCancel != nil {
		c.resolveCancel()
		c.resolveCancel = nil
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// releaseSourceLocked pauses and unloads the output if it holds a source.
func (c *Controller) releaseSourceLocked() {
	if !c.sourceLoaded {
		return
	}
	if err := c.out.Pause(); err != nil {
		zlog.Debug().Err(err).Msg("playback: output pause failed")
	}
	if err := c.out.Unload(); err != nil {
		zlog.Warn().Err(err).Msg("playback: output unload failed")
	}
	c.sourceLoaded = false
}

func (c *Controller) stopLocked() {
	c.cancelPendingLocked()
	c.gen++
	c.releaseSourceLocked()

	c.current = nil
	c.queue = nil
	c.phase = PhaseIdle
	c.intent = false
	c.position = 0
	c.duration = 0
	c.durationKnown = false
	c.loop = false
	c.shuffle = false
	c.lastErr = nil
	c.attempts = 0
	c.resumeAt = 0
}

// advanceLocked moves to the next queue entry. Returns false when the
// current track is not in the queue.
func (c *Controller) advanceLocked() bool {
	if c.current == nil {
		return false
	}
	idx := track.IndexOf(c.queue, c.current.ID)
	if idx < 0 {
		return false
	}
	c.gotoLocked(nextIndex(idx, len(c.queue), c.shuffle, c.intn))
	return true
}

// gotoLocked plays queue entry i. Landing on the current track restarts it
// from the beginning without reloading.
func (c *Controller) gotoLocked(i int) {
	target := c.queue[i]
	c.intent = true

	if target.ID != c.current.ID || !c.phase.hasSource() {
		c.switchTrackLocked(target)
		return
	}

	if err := c.out.Seek(0); err != nil {
		zlog.Warn().Err(err).Msg("playback: rewind failed")
	}
	c.position = 0
	if c.phase != PhasePlaying {
		c.startOutputLocked()
	}
}

func (c *Controller) clampPositionLocked() {
	if c.position < 0 {
		c.position = 0
	}
	if c.durationKnown && c.position > c.duration {
		c.position = c.duration
	}
}

// sendNoticeLocked sends a notice without blocking.
func (c *Controller) sendNoticeLocked(n Notice) {
	select {
	case c.noticeCh <- n:
	default:
		// Channel full, drop notice
	}
}

func (c *Controller) handleReady(d time.Duration) {
	c.update(func() bool {
		if c.current == nil || c.phase != PhaseLoading {
			return false
		}

		c.duration = max(d, 0)
		c.durationKnown = d > 0
		if c.resumeAt > 0 && (!c.durationKnown || c.resumeAt < c.duration) {
			if err := c.out.Seek(c.resumeAt); err != nil {
				zlog.Warn().Err(err).Msgf("playback: could not restore position: pos=%v", c.resumeAt)
			} else {
				c.position = c.resumeAt
			}
		}
		c.resumeAt = 0
		c.clampPositionLocked()
		c.lastErr = nil
		c.phase = PhaseReady

		zlog.Debug().Msgf("playback: ready: track=%s duration=%v play=%t", c.current.ID, c.duration, c.intent)

		// A pause issued while loading wins over the original play request
		if c.intent {
			c.startOutputLocked()
		}
		return true
	})
}

func (c *Controller) handlePlay() {
	c.update(func() bool {
		if c.current == nil {
			return false
		}
		switch c.phase {
		case PhaseStarting, PhaseReady, PhasePaused:
			c.phase = PhasePlaying
			c.intent = true
			return true
		default:
			return false
		}
	})
}

func (c *Controller) handlePause() {
	c.update(func() bool {
		if c.phase != PhasePlaying && c.phase != PhaseStarting {
			return false
		}
		c.phase = PhasePaused
		c.intent = false
		return true
	})
}

func (c *Controller) handleTimeUpdate(pos time.Duration) {
	c.update(func() bool {
		if c.current == nil || !c.phase.hasSource() {
			return false
		}
		prev := c.position
		c.position = pos
		c.clampPositionLocked()
		return c.position != prev
	})
}

func (c *Controller) handleEnded() {
	c.update(func() bool {
		if c.current == nil || (c.phase != PhasePlaying && c.phase != PhaseStarting) {
			return false
		}

		if c.loop {
			if err := c.out.Seek(0); err != nil {
				zlog.Warn().Err(err).Msg("playback: rewind for loop failed")
			}
			c.position = 0
			c.startOutputLocked()
			return true
		}

		if c.durationKnown {
			c.position = c.duration
		}
		if !c.advanceLocked() {
			c.phase = PhasePaused
			c.intent = false
		}
		return true
	})
}

func (c *Controller) handleError(err error) {
	c.update(func() bool {
		if c.current == nil {
			return false
		}
		if c.phase != PhaseLoading && !c.phase.hasSource() {
			return false
		}
		if code, ok := MediaErrorCodeOf(err); ok && code == MediaErrorAborted {
			return false
		}
		c.failLocked(playbackFailure(*c.current, err))
		return true
	})
}
