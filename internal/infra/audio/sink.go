// Package audio implements the playback output on top of gopxl/beep.
package audio

import (
	"github.com/gopxl/beep/v2"
)

// Sink is the device (or stand-in) that pulls samples from the mixer.
//
// Lock and Unlock guard every streamer added with Play; state shared with a
// playing streamer must only be touched while the sink is locked.
type Sink interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Clear()
	Close() error
}
