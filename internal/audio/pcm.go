package audio

import (
	"encoding/binary"
	"math"
)

// fullScale is the magnitude of a full-scale signed 16-bit sample.
const fullScale = 32768.0

// RMSPercent computes the root-mean-square amplitude of a raw S16_LE frame
// and expresses it as a percentage of full digital scale (0-100).
func RMSPercent(frame []byte) float64 {
	samples := BytesToSamples(frame)
	if len(samples) == 0 {
		return 0
	}

	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}

	rms := math.Sqrt(sumSquares / float64(len(samples)))
	return rms / fullScale * 100.0
}

// SamplesToBytes encodes signed 16-bit samples as raw S16_LE bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

// BytesToSamples decodes raw S16_LE bytes into signed 16-bit samples.
// A trailing odd byte is ignored.
func BytesToSamples(frame []byte) []int16 {
	n := len(frame) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
	}
	return samples
}
