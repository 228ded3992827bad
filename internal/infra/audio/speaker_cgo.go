//go:build (linux && cgo) || windows || darwin

package audio

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// SpeakerAvailable indicates whether the speaker sink is supported in this build.
const SpeakerAvailable = true

// beep's speaker is process-wide and can only be initialised once.
var speakerOnce struct {
	sync.Mutex
	initialized bool
	sampleRate  beep.SampleRate
}

// speakerSink plays through the system audio device.
type speakerSink struct {
	sampleRate beep.SampleRate
}

func newSpeakerSink(settings SpeakerSettings) (Sink, error) {
	speakerOnce.Lock()
	defer speakerOnce.Unlock()

	sr := beep.SampleRate(settings.SampleRate)
	if speakerOnce.initialized {
		return &speakerSink{sampleRate: speakerOnce.sampleRate}, nil
	}

	buffer := time.Duration(settings.BufferMs) * time.Millisecond
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, errors.Wrap(err, "failed to initialize speaker")
	}
	speakerOnce.initialized = true
	speakerOnce.sampleRate = sr
	return &speakerSink{sampleRate: sr}, nil
}

func (s *speakerSink) SampleRate() beep.SampleRate { return s.sampleRate }
func (s *speakerSink) Play(st beep.Streamer)       { speaker.Play(st) }
func (s *speakerSink) Lock()                       { speaker.Lock() }
func (s *speakerSink) Unlock()                     { speaker.Unlock() }
func (s *speakerSink) Clear()                      { speaker.Clear() }

// Close clears the mixer. The device itself stays open for the process lifetime.
func (s *speakerSink) Close() error {
	speaker.Clear()
	return nil
}
