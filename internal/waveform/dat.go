package waveform

import (
	"encoding/binary"
	"fmt"
)

// DatHeader is the header of an audiowaveform binary (.dat) file.
type DatHeader struct {
	Version         int32
	EightBit        bool
	SampleRate      int32
	SamplesPerPixel int32
	Length          uint32 // min/max pairs per channel
	Channels        int32
}

const (
	datHeaderV1 = 20
	datHeaderV2 = 24
	datFlag8Bit = 1
)

// ParseDatHeader validates a .dat artifact and returns its header. The
// payload must hold at least Length min/max pairs for every channel.
func ParseDatHeader(data []byte) (DatHeader, error) {
	if len(data) < datHeaderV1 {
		return DatHeader{}, fmt.Errorf("waveform artifact too short: %d bytes", len(data))
	}
	le := binary.LittleEndian
	h := DatHeader{
		Version:         int32(le.Uint32(data[0:4])),
		EightBit:        le.Uint32(data[4:8])&datFlag8Bit != 0,
		SampleRate:      int32(le.Uint32(data[8:12])),
		SamplesPerPixel: int32(le.Uint32(data[12:16])),
		Length:          le.Uint32(data[16:20]),
		Channels:        1,
	}

	headerLen := datHeaderV1
	switch h.Version {
	case 1:
	case 2:
		if len(data) < datHeaderV2 {
			return DatHeader{}, fmt.Errorf("waveform v2 header truncated: %d bytes", len(data))
		}
		h.Channels = int32(le.Uint32(data[20:24]))
		headerLen = datHeaderV2
	default:
		return DatHeader{}, fmt.Errorf("unsupported waveform version %d", h.Version)
	}

	if h.SampleRate <= 0 || h.SamplesPerPixel <= 0 || h.Channels <= 0 {
		return DatHeader{}, fmt.Errorf("invalid waveform header: rate=%d spp=%d channels=%d",
			h.SampleRate, h.SamplesPerPixel, h.Channels)
	}

	sampleBytes := 2
	if h.EightBit {
		sampleBytes = 1
	}
	want := uint64(headerLen) + uint64(h.Length)*2*uint64(h.Channels)*uint64(sampleBytes)
	if uint64(len(data)) < want {
		return DatHeader{}, fmt.Errorf("waveform payload truncated: have %d bytes, want %d", len(data), want)
	}
	return h, nil
}

// DurationMs derives the audio duration covered by the waveform.
func (h DatHeader) DurationMs() int {
	if h.SampleRate <= 0 {
		return 0
	}
	return int(uint64(h.Length) * uint64(h.SamplesPerPixel) * 1000 / uint64(h.SampleRate))
}
