package playback

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/osa030/tunedeck/internal/domain/track"
)

func TestMediaErrorCodeOf(t *testing.T) {
	base := NewMediaError(MediaErrorSrcNotSupported, errors.New("403 forbidden"))
	wrapped := errors.Wrap(base, "load")

	code, ok := MediaErrorCodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, MediaErrorSrcNotSupported, code)
	assert.True(t, IsStaleSource(wrapped))

	_, ok = MediaErrorCodeOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsStaleSource(NewMediaError(MediaErrorDecode, nil)))
}

func TestMediaError_Error(t *testing.T) {
	assert.Equal(t, "media error: aborted", NewMediaError(MediaErrorAborted, nil).Error())
	assert.Equal(t, "media error: network: reset", NewMediaError(MediaErrorNetwork, errors.New("reset")).Error())
}

func TestFailureClassification(t *testing.T) {
	tr := track.Track{ID: "a"}
	cause := NewMediaError(MediaErrorDecode, errors.New("bad header"))

	rf := resolutionFailure(tr, errors.New("token denied"))
	assert.True(t, IsResolutionFailure(rf))
	assert.False(t, IsPlaybackFailure(rf))
	assert.Contains(t, rf.Error(), "resolve track a")

	pf := playbackFailure(tr, cause)
	assert.True(t, IsPlaybackFailure(pf))
	assert.False(t, IsResolutionFailure(pf))
	code, ok := MediaErrorCodeOf(pf)
	assert.True(t, ok)
	assert.Equal(t, MediaErrorDecode, code)
}
