// ABOUTME: PCM audio decoder
// ABOUTME: Decodes little-endian 16-bit and 24-bit PCM bytes to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/ringfeed/pkg/audio"
)

// PCMDecoder decodes raw interleaved PCM
type PCMDecoder struct {
	encoding audio.Encoding
}

// NewPCM creates a decoder for the format's encoding
func NewPCM(format audio.Format) (*PCMDecoder, error) {
	if format.Encoding != audio.EncodingInt16 && format.Encoding != audio.EncodingInt24 {
		return nil, fmt.Errorf("unsupported encoding for PCM decoder: %s", format.Encoding)
	}
	return &PCMDecoder{encoding: format.Encoding}, nil
}

// Decode converts PCM bytes to samples in the encoding's native range; trailing partial samples are ignored
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.encoding == audio.EncodingInt24 {
		numSamples := len(data) / 3
		samples := make([]int32, numSamples)
		for i := 0; i < numSamples; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples, nil
	}

	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = int32(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
