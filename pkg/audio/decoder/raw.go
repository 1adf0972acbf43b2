package decoder

import (
	"math"
	"strings"

	"github.com/RyanBlaney/latency-benchmark-common/logging"

	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// SampleFormat names a raw little-endian PCM sample encoding
type SampleFormat string

const (
	FormatS16LE   SampleFormat = "s16le"
	FormatS32LE   SampleFormat = "s32le"
	FormatF32LE   SampleFormat = "f32le"
	FormatU8      SampleFormat = "u8"
	FormatUnknown SampleFormat = ""
)

// ParseSampleFormat normalizes a format name
func ParseSampleFormat(s string) SampleFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s16", "s16le", "pcm_s16le":
		return FormatS16LE
	case "s32", "s32le", "pcm_s32le":
		return FormatS32LE
	case "f32", "f32le", "float", "pcm_f32le":
		return FormatF32LE
	case "u8", "pcm_u8":
		return FormatU8
	default:
		return FormatUnknown
	}
}

func (f SampleFormat) bytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS32LE, FormatF32LE:
		return 4
	case FormatU8:
		return 1
	default:
		return 0
	}
}

// DecodeRaw converts an interleaved raw PCM buffer into a mono SampleBuffer
func DecodeRaw(buffer []byte, format SampleFormat, sampleRate, channels int) (features.SampleBuffer, error) {
	if channels <= 0 {
		return features.SampleBuffer{}, common.NewAnalysisErrorWithFields(common.StageDecode,
			common.ErrCodeNoAudioChannel, "raw buffer declares no channels", nil,
			logging.Fields{"channels": channels})
	}
	width := format.bytesPerSample()
	if width == 0 {
		return features.SampleBuffer{}, common.NewAnalysisErrorWithFields(common.StageDecode,
			common.ErrCodeDecode, "unsupported sample format", nil,
			logging.Fields{"format": string(format)})
	}
	if len(buffer)%(width*channels) != 0 {
		return features.SampleBuffer{}, common.NewAnalysisErrorWithFields(common.StageDecode,
			common.ErrCodeDecode, "buffer size not aligned to sample frames", nil,
			logging.Fields{
				"buffer_size": len(buffer),
				"format":      string(format),
				"channels":    channels,
			})
	}

	interleaved := make([]float32, len(buffer)/width)
	for i := range interleaved {
		b := buffer[i*width : (i+1)*width]
		switch format {
		case FormatS16LE:
			interleaved[i] = float32(int16(uint16(b[0])|uint16(b[1])<<8)) / 32768
		case FormatS32LE:
			v := int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
			interleaved[i] = float32(float64(v) / 2147483648.0)
		case FormatF32LE:
			bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
			interleaved[i] = math.Float32frombits(bits)
		case FormatU8:
			interleaved[i] = (float32(b[0]) - 128) / 128
		}
	}

	return features.SampleBuffer{
		Samples:    DownmixToMono(interleaved, channels),
		SampleRate: sampleRate,
	}, nil
}

// DownmixToMono averages interleaved channels
func DownmixToMono(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(interleaved))
		copy(out, interleaved)
		return out
	}
	n := len(interleaved) / channels
	mono := make([]float32, n)
	for i := range n {
		sum := float32(0)
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
