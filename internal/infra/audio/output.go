package audio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/playback"
)

const (
	defaultTickInterval   = 250 * time.Millisecond
	defaultMaxSourceBytes = 200 << 20
	resampleQuality       = 4
)

// ErrNoSource is returned by commands that need a loaded source.
var ErrNoSource = errors.New("no source loaded")

// Options tunes an Output.
type Options struct {
	HTTPClient     *http.Client
	TickInterval   time.Duration
	MaxSourceBytes int64
}

// Output plays one source at a time through a Sink. It implements
// playback.Output: commands return immediately and events are delivered from
// a dispatcher goroutine, never from inside a command.
type Output struct {
	mu       sync.Mutex
	sink     Sink
	client   *http.Client
	tick     time.Duration
	limit    int64
	listener playback.Listener

	gen    uint64             // Incremented by every Load and Unload
	src    *source            // Decoded source attached to the sink
	cancel context.CancelFunc // Cancels the in-flight fetch

	events *eventQueue
	ctx    context.Context
	stop   context.CancelFunc
}

// source is a decoded track attached to the sink.
type source struct {
	gen      uint64
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	stream   *trackStream
	ticking  chan struct{} // Closed to stop the time-update ticker
}

// New creates an Output playing through sink.
func New(sink Sink, opts Options) *Output {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = defaultMaxSourceBytes
	}

	ctx, stop := context.WithCancel(context.Background())
	o := &Output{
		sink:   sink,
		client: opts.HTTPClient,
		tick:   opts.TickInterval,
		limit:  opts.MaxSourceBytes,
		ctx:    ctx,
		stop:   stop,
	}
	o.events = newEventQueue(o.deliver)
	go o.events.run(ctx)
	return o
}

// SetListener sets the receiver of output events.
func (o *Output) SetListener(l playback.Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listener = l
}

// Load replaces the current source with url. Fetching and decoding happen in
// the background; OnReady or OnError follows.
func (o *Output) Load(url string) error {
	if url == "" {
		return errors.New("empty media URL")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.unloadLocked()
	o.gen++
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancel = cancel

	zlog.Debug().Msgf("audio: loading source: gen=%d", o.gen)
	go o.load(ctx, o.gen, url)
	return nil
}

// Play starts or resumes the current source. A source that reached its end
// restarts from the beginning.
func (o *Output) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	src := o.src
	if src == nil {
		return ErrNoSource
	}

	o.sink.Lock()
	if src.stream.ended {
		if err := src.streamer.Seek(0); err != nil {
			o.sink.Unlock()
			return errors.Wrap(err, "failed to rewind")
		}
		src.stream.ended = false
	}
	src.ctrl.Paused = false
	o.sink.Unlock()

	o.startTickerLocked(src)
	o.events.push(src.gen, func(l playback.Listener) { l.OnPlay() })
	return nil
}

// Pause pauses the current source. Pausing without a source is a no-op.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	src := o.src
	if src == nil {
		return nil
	}

	o.sink.Lock()
	wasPlaying := !src.ctrl.Paused
	src.ctrl.Paused = true
	o.sink.Unlock()

	o.stopTickerLocked(src)
	if wasPlaying {
		o.events.push(src.gen, func(l playback.Listener) { l.OnPause() })
	}
	return nil
}

// Seek moves the current source to pos, clamped to its length.
func (o *Output) Seek(pos time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	src := o.src
	if src == nil {
		return ErrNoSource
	}

	o.sink.Lock()
	n := src.format.SampleRate.N(pos)
	if length := src.streamer.Len(); n >= length {
		n = max(length-1, 0)
	}
	n = max(n, 0)
	err := src.streamer.Seek(n)
	if err == nil {
		src.stream.ended = false
	}
	o.sink.Unlock()

	if err != nil {
		return errors.Wrapf(err, "failed to seek to %v", pos)
	}

	actual := src.format.SampleRate.D(n)
	o.events.push(src.gen, func(l playback.Listener) { l.OnTimeUpdate(actual) })
	return nil
}

// Unload detaches the current source and cancels any pending load.
func (o *Output) Unload() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.unloadLocked()
	o.gen++
	return nil
}

// Close unloads, stops event delivery and closes the sink.
func (o *Output) Close() error {
	o.mu.Lock()
	o.unloadLocked()
	o.gen++
	o.mu.Unlock()

	o.stop()
	return o.sink.Close()
}

// load fetches and decodes url and attaches it if gen is still current.
func (o *Output) load(ctx context.Context, gen uint64, url string) {
	m, err := fetch(ctx, o.client, url, o.limit)
	if err != nil {
		o.fail(gen, err)
		return
	}

	streamer, format, err := decode(m)
	if err != nil {
		o.fail(gen, err)
		return
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		streamer.Close()
		zlog.Debug().Msgf("audio: discarding superseded source: gen=%d", gen)
		return
	}

	var s beep.Streamer = streamer
	if rate := o.sink.SampleRate(); format.SampleRate != rate {
		s = beep.Resample(resampleQuality, format.SampleRate, rate, streamer)
	}

	src := &source{
		gen:      gen,
		streamer: streamer,
		format:   format,
		ctrl:     &beep.Ctrl{Streamer: s, Paused: true},
	}
	src.stream = &trackStream{
		ctrl: src.ctrl,
		onEnd: func(err error) {
			if err != nil {
				o.events.push(gen, func(l playback.Listener) {
					l.OnError(playback.NewMediaError(playback.MediaErrorDecode, err))
				})
				return
			}
			o.events.push(gen, func(l playback.Listener) { l.OnEnded() })
		},
	}
	o.src = src
	o.cancel = nil
	o.sink.Play(src.stream)

	duration := format.SampleRate.D(streamer.Len())
	o.mu.Unlock()

	zlog.Debug().Msgf("audio: source ready: gen=%d duration=%v rate=%d", gen, duration, format.SampleRate)
	o.events.push(gen, func(l playback.Listener) { l.OnReady(duration) })
}

func (o *Output) fail(gen uint64, err error) {
	if code, ok := playback.MediaErrorCodeOf(err); ok && code == playback.MediaErrorAborted {
		return
	}
	zlog.Warn().Err(err).Msgf("audio: source failed: gen=%d", gen)
	o.events.push(gen, func(l playback.Listener) { l.OnError(err) })
}

func (o *Output) unloadLocked() {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	src := o.src
	if src == nil {
		return
	}
	o.src = nil

	o.stopTickerLocked(src)
	o.sink.Lock()
	src.ctrl.Paused = true
	src.stream.removed = true
	o.sink.Unlock()

	if err := src.streamer.Close(); err != nil {
		zlog.Debug().Err(err).Msg("audio: failed to close streamer")
	}
}

func (o *Output) startTickerLocked(src *source) {
	if src.ticking != nil {
		return
	}
	src.ticking = make(chan struct{})
	go o.tickLoop(src, src.ticking)
}

func (o *Output) stopTickerLocked(src *source) {
	if src.ticking != nil {
		close(src.ticking)
		src.ticking = nil
	}
}

// tickLoop publishes the position of src until stopped.
func (o *Output) tickLoop(src *source, stop <-chan struct{}) {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			if o.src != src {
				o.mu.Unlock()
				return
			}
			o.sink.Lock()
			pos := src.format.SampleRate.D(src.streamer.Position())
			playing := !src.ctrl.Paused
			o.sink.Unlock()
			o.mu.Unlock()

			if playing {
				o.events.push(src.gen, func(l playback.Listener) { l.OnTimeUpdate(pos) })
			}
		}
	}
}

// deliver hands an event to the listener unless its source was replaced.
func (o *Output) deliver(gen uint64, fire func(playback.Listener)) {
	o.mu.Lock()
	current := gen == o.gen
	l := o.listener
	o.mu.Unlock()

	if !current || l == nil {
		return
	}
	fire(l)
}

// trackStream keeps a finished source in the mixer so that it can be
// rewound and played again. Fields are guarded by the sink lock.
type trackStream struct {
	ctrl    *beep.Ctrl
	ended   bool
	removed bool
	onEnd   func(err error)
}

func (s *trackStream) Stream(samples [][2]float64) (int, bool) {
	if s.removed {
		return 0, false
	}
	if s.ended {
		clear(samples)
		return len(samples), true
	}

	n, ok := s.ctrl.Stream(samples)
	if !ok || n < len(samples) {
		clear(samples[n:])
		s.ended = true
		s.ctrl.Paused = true
		s.onEnd(s.ctrl.Err())
	}
	return len(samples), true
}

func (s *trackStream) Err() error {
	return s.ctrl.Err()
}
