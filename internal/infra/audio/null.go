package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// nullSink drains the mixer at a steady pace without a device.
// Speed > 1 drains faster than real time.
type nullSink struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	mixer      *beep.Mixer
	chunk      time.Duration
	speed      float64

	done chan struct{}
	once sync.Once
}

func newNullSink(settings NullSettings) *nullSink {
	s := &nullSink{
		sampleRate: beep.SampleRate(settings.SampleRate),
		mixer:      &beep.Mixer{},
		chunk:      time.Duration(settings.ChunkMs) * time.Millisecond,
		speed:      settings.Speed,
		done:       make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *nullSink) SampleRate() beep.SampleRate { return s.sampleRate }

func (s *nullSink) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Add(st)
}

func (s *nullSink) Lock()   { s.mu.Lock() }
func (s *nullSink) Unlock() { s.mu.Unlock() }

func (s *nullSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mixer.Clear()
}

func (s *nullSink) Close() error {
	s.once.Do(func() { close(s.done) })
	s.Clear()
	return nil
}

func (s *nullSink) drain() {
	interval := time.Duration(float64(s.chunk) / s.speed)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	buf := make([][2]float64, s.sampleRate.N(s.chunk))
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.mixer.Stream(buf)
			s.mu.Unlock()
		}
	}
}
