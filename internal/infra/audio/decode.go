package audio

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/osa030/tunedeck/internal/app/playback"
)

// Container formats understood by the output.
const (
	formatUnknown = ""
	formatMP3     = "mp3"
	formatWAV     = "wav"
	formatFLAC    = "flac"
)

// errUnsupportedFormat is returned when the media is none of the known formats.
var errUnsupportedFormat = errors.New("unsupported media format")

// httpStatusError carries a non-2xx response status.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return "unexpected status: " + http.StatusText(e.StatusCode)
}

// media is a fetched, not yet decoded source.
type media struct {
	data        []byte
	contentType string
	name        string
}

// fetch downloads rawURL into memory. file:// URLs and bare paths are read
// from disk.
func fetch(ctx context.Context, client *http.Client, rawURL string, limit int64) (*media, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, playback.NewMediaError(playback.MediaErrorSrcNotSupported, errors.Wrap(err, "invalid media URL"))
	}

	if u.Scheme == "" || u.Scheme == "file" {
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, playback.NewMediaError(playback.MediaErrorSrcNotSupported, errors.Wrap(err, "failed to read media file"))
		}
		return &media{data: data, name: u.Path}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, playback.NewMediaError(playback.MediaErrorSrcNotSupported, errors.Wrap(err, "failed to create request"))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	if int64(len(data)) > limit {
		return nil, playback.NewMediaError(playback.MediaErrorSrcNotSupported, errors.Newf("media exceeds %d bytes", limit))
	}

	return &media{data: data, contentType: resp.Header.Get("Content-Type"), name: u.Path}, nil
}

// classifyStatus maps an HTTP status to a media error. Rejections of the
// source itself (an expired or revoked stream token) are source-not-supported.
func classifyStatus(code int) error {
	err := errors.WithDetailf(&httpStatusError{StatusCode: code}, "status code %d", code)
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return playback.NewMediaError(playback.MediaErrorSrcNotSupported, err)
	default:
		return playback.NewMediaError(playback.MediaErrorNetwork, err)
	}
}

func classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return playback.NewMediaError(playback.MediaErrorAborted, ctx.Err())
	}
	return playback.NewMediaError(playback.MediaErrorNetwork, errors.Wrap(err, "failed to fetch media"))
}

// detectFormat picks the container from the content type, the file
// extension, then the leading bytes, in that order.
func detectFormat(m *media) string {
	if m.contentType != "" {
		if mt, _, err := mime.ParseMediaType(m.contentType); err == nil {
			switch mt {
			case "audio/mpeg", "audio/mp3":
				return formatMP3
			case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
				return formatWAV
			case "audio/flac", "audio/x-flac":
				return formatFLAC
			}
		}
	}

	switch strings.ToLower(path.Ext(m.name)) {
	case ".mp3":
		return formatMP3
	case ".wav":
		return formatWAV
	case ".flac":
		return formatFLAC
	}

	return sniffFormat(m.data)
}

func sniffFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return formatFLAC
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return formatWAV
	case bytes.HasPrefix(data, []byte("ID3")):
		return formatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return formatMP3
	default:
		return formatUnknown
	}
}

// decode turns fetched media into a seekable streamer.
func decode(m *media) (beep.StreamSeekCloser, beep.Format, error) {
	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)

	r := nopCloser{bytes.NewReader(m.data)}
	switch detectFormat(m) {
	case formatMP3:
		streamer, format, err = mp3.Decode(r)
	case formatWAV:
		streamer, format, err = wav.Decode(r)
	case formatFLAC:
		streamer, format, err = flac.Decode(r)
	default:
		return nil, beep.Format{}, playback.NewMediaError(playback.MediaErrorSrcNotSupported, errUnsupportedFormat)
	}
	if err != nil {
		return nil, beep.Format{}, playback.NewMediaError(playback.MediaErrorDecode, errors.Wrap(err, "failed to decode media"))
	}
	return streamer, format, nil
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
