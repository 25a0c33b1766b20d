package media

import (
	"context"
	"errors"
	"fmt"
)

// TargetSampleRate is the only sample rate the waveform renderer is tuned for.
const TargetSampleRate = 48000

var (
	ErrUpstreamUnavailable = errors.New("media source unavailable")
	ErrNoSuitableStream    = errors.New("no suitable audio stream")
)

// Source resolves external video references.
type Source interface {
	// Exists reports whether ref resolves to a playable item. Transport or
	// API failures return ErrUpstreamUnavailable rather than false.
	Exists(ctx context.Context, ref string) (bool, error)

	// BestAudioStream picks the stream the waveform pipeline should decode.
	BestAudioStream(ctx context.Context, ref string) (Stream, error)
}

// Stream is a resolved, directly fetchable audio stream.
type Stream struct {
	URL        string
	Bitrate    float64 // kbit/s
	SampleRate int
	DurationMs int
}

// Format is one variant advertised by the external source.
type Format struct {
	URL        string
	SampleRate int
	Bitrate    float64 // kbit/s
	AudioOnly  bool
}

// SelectBestAudio returns the lowest-bitrate audio-only format at
// TargetSampleRate. Ties keep the first advertised format.
func SelectBestAudio(formats []Format) (Format, error) {
	var best Format
	found := false
	for _, f := range formats {
		if !f.AudioOnly || f.SampleRate != TargetSampleRate || f.URL == "" {
			continue
		}
		if !found || f.Bitrate < best.Bitrate {
			best = f
			found = true
		}
	}
	if !found {
		return Format{}, fmt.Errorf("%w: none of %d formats is audio-only at %d Hz",
			ErrNoSuitableStream, len(formats), TargetSampleRate)
	}
	return best, nil
}
