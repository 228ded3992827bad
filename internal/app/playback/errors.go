package playback

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// Errors
var (
	ErrInvalidTrack = errors.New("track has no ID or playable source")
	ErrResolution   = errors.New("could not resolve a playable source")
	ErrPlayback     = errors.New("audio output failed")
)

// MediaErrorCode classifies errors reported by an Output.
type MediaErrorCode int

const (
	MediaErrorAborted         MediaErrorCode = iota + 1 // Load replaced before it finished
	MediaErrorNetwork                                   // Transfer failed mid-way
	MediaErrorDecode                                    // Media is corrupt or undecodable
	MediaErrorSrcNotSupported                           // Source rejected, e.g. an expired stream token
)

// String returns the string representation of the code.
func (c MediaErrorCode) String() string {
	switch c {
	case MediaErrorAborted:
		return "aborted"
	case MediaErrorNetwork:
		return "network"
	case MediaErrorDecode:
		return "decode"
	case MediaErrorSrcNotSupported:
		return "src_not_supported"
	default:
		return "unknown"
	}
}

// MediaError is the error type Outputs report through Listener.OnError.
type MediaError struct {
	Code MediaErrorCode
	Err  error
}

// NewMediaError creates a MediaError wrapping err.
func NewMediaError(code MediaErrorCode, err error) *MediaError {
	return &MediaError{Code: code, Err: err}
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("media error: %s", e.Code)
	}
	return fmt.Sprintf("media error: %s: %v", e.Code, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

// MediaErrorCodeOf extracts the MediaErrorCode carried by err.
func MediaErrorCodeOf(err error) (MediaErrorCode, bool) {
	var me *MediaError
	if errors.As(err, &me) {
		return me.Code, true
	}
	return 0, false
}

// IsStaleSource reports whether err suggests the resolved URL is no longer valid.
func IsStaleSource(err error) bool {
	code, ok := MediaErrorCodeOf(err)
	return ok && (code == MediaErrorSrcNotSupported || code == MediaErrorNetwork)
}

// IsResolutionFailure reports whether err is a ResolutionFailure.
func IsResolutionFailure(err error) bool {
	return errors.Is(err, ErrResolution)
}

// IsPlaybackFailure reports whether err is a PlaybackFailure.
func IsPlaybackFailure(err error) bool {
	return errors.Is(err, ErrPlayback)
}

func resolutionFailure(t track.Track, err error) error {
	return errors.Mark(errors.Wrapf(err, "resolve track %s", t.ID), ErrResolution)
}

func playbackFailure(t track.Track, err error) error {
	return errors.Mark(errors.Wrapf(err, "play track %s", t.ID), ErrPlayback)
}
