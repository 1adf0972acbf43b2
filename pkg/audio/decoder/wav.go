// Package decoder is the audio front door of the pipeline: it turns WAV
// files and raw PCM buffers into mono features.SampleBuffers and classifies
// failures as DECODE_FAILED or NO_AUDIO_CHANNEL.
package decoder

import (
	"io"
	"os"

	"github.com/RyanBlaney/latency-benchmark-common/logging"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/spectral-cluster/pkg/audio/features"
	"github.com/RyanBlaney/spectral-cluster/pkg/common"
)

// ReadWAVFile opens and decodes path
func ReadWAVFile(path string) (features.SampleBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return features.SampleBuffer{}, common.NewAnalysisErrorWithFields(common.StageDecode,
			common.ErrCodeDecode, "failed to open audio file", err,
			logging.Fields{"path": path})
	}
	defer f.Close()

	buf, err := ReadWAV(f)
	if err != nil {
		if ae, ok := err.(*common.AnalysisError); ok {
			if ae.Fields == nil {
				ae.Fields = logging.Fields{}
			}
			ae.Fields["path"] = path
		}
		return features.SampleBuffer{}, err
	}
	return buf, nil
}

// ReadWAV decodes a PCM WAV stream and down-mixes it to mono
func ReadWAV(r io.ReadSeeker) (features.SampleBuffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return features.SampleBuffer{}, common.NewAnalysisError(common.StageDecode,
			common.ErrCodeDecode, "audio source is not a valid WAV file", nil)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return features.SampleBuffer{}, common.NewAnalysisError(common.StageDecode,
			common.ErrCodeDecode, "failed to read PCM buffer", err)
	}
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return features.SampleBuffer{}, common.NewAnalysisError(common.StageDecode,
			common.ErrCodeNoAudioChannel, "audio source has no channel", nil)
	}
	if len(pcm.Data) == 0 {
		return features.SampleBuffer{}, common.NewAnalysisErrorWithFields(common.StageDecode,
			common.ErrCodeNoAudioChannel, "audio source contains no samples", nil,
			logging.Fields{"channels": pcm.Format.NumChannels})
	}

	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 {
		bitDepth = pcm.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	interleaved := make([]float32, len(pcm.Data))
	for i, v := range pcm.Data {
		if bitDepth == 8 {
			// 8-bit WAV is unsigned
			interleaved[i] = (float32(v) - 128) / 128
			continue
		}
		interleaved[i] = float32(v) / scale
	}

	return features.SampleBuffer{
		Samples:    DownmixToMono(interleaved, pcm.Format.NumChannels),
		SampleRate: pcm.Format.SampleRate,
	}, nil
}
