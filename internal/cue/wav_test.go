package cue

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a WAV file; extra chunks are inserted before data.
func buildWAV(t *testing.T, format, bits, channels uint16, rate uint32, samples []int16, extra ...[]byte) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString("WAVE")

	body.WriteString("fmt ")
	for _, v := range []any{
		uint32(16),
		format,
		channels,
		rate,
		rate * uint32(channels) * uint32(bits) / 8,
		channels * bits / 8,
		bits,
	} {
		require.NoError(t, binary.Write(&body, binary.LittleEndian, v))
	}

	for _, chunk := range extra {
		body.Write(chunk)
	}

	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(len(samples)*2))
	binary.Write(&body, binary.LittleEndian, samples)

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestDecodeWAV(t *testing.T) {
	data := buildWAV(t, 1, 16, 2, 22050, []int16{0, 16384, -32768, 32767})

	clip, err := DecodeWAV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 22050, clip.SampleRate)
	assert.Equal(t, 2, clip.Channels)
	require.Len(t, clip.Samples, 4)
	assert.Equal(t, float32(0), clip.Samples[0])
	assert.Equal(t, float32(0.5), clip.Samples[1])
	assert.Equal(t, float32(-1), clip.Samples[2])
	assert.InDelta(t, 1.0, clip.Samples[3], 0.0001)
	assert.InDelta(t, 2.0/22050, clip.Duration(), 1e-9)
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	junk := append([]byte("junk"), 4, 0, 0, 0, 'a', 'b', 'c', 'd')
	data := buildWAV(t, 1, 16, 1, 8000, []int16{100, 200}, junk)

	clip, err := DecodeWAV(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8000, clip.SampleRate)
	assert.Len(t, clip.Samples, 2)
}

func TestDecodeWAV24Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cue.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 44100, 24, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           []int{0, 1 << 22, -(1 << 23)},
		SourceBitDepth: 24,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	clip, err := DecodeWAV(f)
	require.NoError(t, err)
	assert.Equal(t, 44100, clip.SampleRate)
	assert.Equal(t, []float32{0, 0.5, -1}, clip.Samples)
}

func TestDecodeWAVRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"not riff", []byte("OggS0000WAVEfmt ")},
		{"float samples", buildWAV(t, 3, 32, 1, 8000, nil)},
		{"8-bit", buildWAV(t, 1, 8, 1, 8000, nil)},
		{"no data chunk", buildWAV(t, 1, 16, 1, 8000, nil)[:36]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeWAV(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestLoadEmptyPathIsNop(t *testing.T) {
	p, err := Load("", zerolog.Nop())
	require.NoError(t, err)
	p.Play()
	assert.NoError(t, p.Close())
}

func TestLoadRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beep.wav")
	require.NoError(t, os.WriteFile(path, []byte("not audio at all"), 0644))

	_, err := Load(path, zerolog.Nop())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.wav"), zerolog.Nop())
	assert.Error(t, err)
}
