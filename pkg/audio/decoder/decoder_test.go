package decoder

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

func writeTestWAV(t *testing.T, sampleRate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

func TestReadWAVFileMono(t *testing.T) {
	data := make([]int, 1600)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	path := writeTestWAV(t, 16000, 1, data)

	buf, err := ReadWAVFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.SampleRate)
	require.Len(t, buf.Samples, 1600)
	assert.InDelta(t, float64(data[10])/32768, float64(buf.Samples[10]), 1e-6)
	assert.InDelta(t, 0.1, buf.Duration(), 1e-9)
}

func TestReadWAVFileDownmixesStereo(t *testing.T) {
	data := []int{1000, 3000, -2000, 2000, 0, 0}
	path := writeTestWAV(t, 8000, 2, data)

	buf, err := ReadWAVFile(path)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 3)
	assert.InDelta(t, 2000.0/32768, float64(buf.Samples[0]), 1e-6)
	assert.InDelta(t, 0, float64(buf.Samples[1]), 1e-6)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	_, err := ReadWAV(bytes.NewReader([]byte("definitely not a riff header")))
	assert.ErrorIs(t, err, common.ErrDecode)
}

func TestReadWAVFileMissing(t *testing.T) {
	_, err := ReadWAVFile(filepath.Join(t.TempDir(), "missing.wav"))
	require.ErrorIs(t, err, common.ErrDecode)

	var ae *common.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, common.StageDecode, ae.Stage)
}

func TestDecodeRaw(t *testing.T) {
	// two stereo frames of s16le: (16384, -16384), (32767, 32767)
	raw := []byte{0x00, 0x40, 0x00, 0xC0, 0xFF, 0x7F, 0xFF, 0x7F}
	buf, err := DecodeRaw(raw, FormatS16LE, 22050, 2)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 2)
	assert.InDelta(t, 0, float64(buf.Samples[0]), 1e-6)
	assert.InDelta(t, 32767.0/32768, float64(buf.Samples[1]), 1e-6)

	f32 := make([]byte, 4)
	bits := math.Float32bits(0.25)
	f32[0], f32[1], f32[2], f32[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	buf, err = DecodeRaw(f32, ParseSampleFormat("float"), 8000, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25}, buf.Samples)

	buf, err = DecodeRaw([]byte{128, 0}, FormatU8, 8000, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, -1}, buf.Samples)
}

func TestDecodeRawErrors(t *testing.T) {
	_, err := DecodeRaw([]byte{1, 2}, FormatS16LE, 8000, 0)
	assert.ErrorIs(t, err, common.ErrNoAudioChannel)

	_, err = DecodeRaw([]byte{1, 2, 3}, FormatS16LE, 8000, 1)
	assert.ErrorIs(t, err, common.ErrDecode)

	_, err = DecodeRaw([]byte{1, 2}, ParseSampleFormat("opus"), 8000, 1)
	assert.ErrorIs(t, err, common.ErrDecode)
}
