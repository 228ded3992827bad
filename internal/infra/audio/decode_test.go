package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name  string
		media media
		want  string
	}{
		{"mpeg content type", media{contentType: "audio/mpeg"}, formatMP3},
		{"wav content type with params", media{contentType: "audio/wav; codecs=1"}, formatWAV},
		{"flac content type", media{contentType: "audio/x-flac"}, formatFLAC},
		{"extension fallback", media{contentType: "application/octet-stream", name: "/songs/A.MP3"}, formatMP3},
		{"flac magic", media{data: []byte("fLaC\x00\x00")}, formatFLAC},
		{"wav magic", media{data: []byte("RIFF\x00\x00\x00\x00WAVEfmt ")}, formatWAV},
		{"id3 magic", media{data: []byte("ID3\x04")}, formatMP3},
		{"mpeg frame sync", media{data: []byte{0xFF, 0xFB, 0x90}}, formatMP3},
		{"unknown", media{data: []byte("hello")}, formatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.media
			assert.Equal(t, tt.want, detectFormat(&m))
		})
	}
}
