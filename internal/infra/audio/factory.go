package audio

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// Sink types accepted by NewFromConfig.
const (
	TypeSpeaker = "speaker"
	TypeNull    = "null"
)

// Config selects the sink and tunes the output.
type Config struct {
	Type           string         // "speaker" or "null"
	Settings       map[string]any // Sink specific settings
	TickInterval   time.Duration  // Interval between time updates while playing
	MaxSourceBytes int64          // Largest media file accepted
	HTTPClient     *http.Client   // Client for media fetches; nil uses http.DefaultClient
}

// SpeakerSettings configures the speaker sink.
type SpeakerSettings struct {
	SampleRate int `mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs   int `mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
}

// NullSettings configures the null sink.
type NullSettings struct {
	SampleRate int     `mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	ChunkMs    int     `mapstructure:"chunk_ms" default:"20" validate:"gte=1,lte=1000"`
	Speed      float64 `mapstructure:"speed" default:"1" validate:"gt=0,lte=1000"`
}

// NewFromConfig creates an Output with the sink named by cfg.Type.
func NewFromConfig(cfg Config) (*Output, error) {
	sink, err := newSink(cfg.Type, cfg.Settings)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("audio: output created: type=%s sample_rate=%d", cfg.Type, sink.SampleRate())
	return New(sink, Options{
		HTTPClient:     cfg.HTTPClient,
		TickInterval:   cfg.TickInterval,
		MaxSourceBytes: cfg.MaxSourceBytes,
	}), nil
}

func newSink(typ string, settings map[string]any) (Sink, error) {
	switch typ {
	case TypeSpeaker:
		var s SpeakerSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid speaker settings")
		}
		return newSpeakerSink(s)

	case TypeNull:
		var s NullSettings
		if err := decodeSettings(settings, &s); err != nil {
			return nil, errors.Wrap(err, "invalid null settings")
		}
		return newNullSink(s), nil

	default:
		return nil, errors.Newf("unsupported output type: %s", typ)
	}
}

func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
