//go:build !((linux && cgo) || windows || darwin)

package audio

import "github.com/cockroachdb/errors"

// SpeakerAvailable indicates whether the speaker sink is supported in this build.
// Audio output requires cgo for the native sound libraries.
const SpeakerAvailable = false

func newSpeakerSink(SpeakerSettings) (Sink, error) {
	return nil, errors.New("speaker output is unavailable in builds without cgo, use the null output")
}
