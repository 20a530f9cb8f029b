// Package cue plays the short sound that confirms a capture has started.
package cue

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned for anything other than integer PCM WAV
// at 16, 24 or 32 bits.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

const wavFormatPCM = 1

// Clip is decoded audio, interleaved, in [-1, 1].
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)/c.Channels) / float64(c.SampleRate)
}

// DecodeWAV reads a RIFF/WAVE file with signed integer PCM samples.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	switch {
	case d.WavAudioFormat != wavFormatPCM:
		return Clip{}, fmt.Errorf("%w: format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	case d.BitDepth != 16 && d.BitDepth != 24 && d.BitDepth != 32:
		// 8-bit WAV is unsigned and not worth a separate path for a cue
		return Clip{}, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, d.BitDepth)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if buf == nil {
		return Clip{}, fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
	}

	scale := float32(int64(1) << (d.BitDepth - 1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s) / scale
	}
	return Clip{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Samples:    samples,
	}, nil
}
