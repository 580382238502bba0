// ABOUTME: PCM codec between float samples and signed 16-bit integers
// ABOUTME: Provides little-endian wire packing for 16-bit PCM
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// pcmNegativeScale maps -1.0 to the int16 minimum
	pcmNegativeScale = 32768.0

	// pcmPositiveScale maps 1.0 to the int16 maximum
	pcmPositiveScale = 32767.0
)

// FloatToPCM16 converts float samples to 16-bit PCM.
// Samples are clamped to [-1, 1]; negatives scale by 32768 and non-negatives
// by 32767 so both ends of the two's-complement range are reachable.
// Negatives round to nearest. Non-negatives round up, which keeps the round
// trip through PCM16ToFloat within one step of the input.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = SampleToPCM16(s)
	}
	return out
}

// SampleToPCM16 converts a single float sample, saturating instead of wrapping
func SampleToPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}

	if v < 0 {
		return int16(math.Round(v * pcmNegativeScale))
	}
	return int16(math.Ceil(v * pcmPositiveScale))
}

// PCM16ToFloat converts 16-bit PCM to float samples in [-1, 1)
func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(s) / pcmNegativeScale)
	}
	return out
}

// EncodePCM16LE packs samples as little-endian bytes
func EncodePCM16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodePCM16LE unpacks little-endian bytes; a trailing odd byte is ignored
func DecodePCM16LE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}
