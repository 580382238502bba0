// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and immutable float-domain frames
package audio

import "time"

const (
	// CaptureSampleRate is the outbound microphone rate expected by the relay
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of synthesized agent audio
	PlaybackSampleRate = 24000

	// CaptureFrameSize is the number of samples per outbound frame
	CaptureFrameSize = 2048
)

// Format describes an audio stream format
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// CaptureFormat is the wire format of microphone audio
var CaptureFormat = Format{SampleRate: CaptureSampleRate, Channels: 1, BitDepth: 16}

// PlaybackFormat is the wire format of agent audio
var PlaybackFormat = Format{SampleRate: PlaybackSampleRate, Channels: 1, BitDepth: 16}

// Frame is one fixed block of mono float samples in [-1, 1].
// Frames are never mutated after creation; position in a queue or stream is
// the only sequence information they carry.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// FrameFromPCM16LE decodes little-endian 16-bit wire audio into a float frame
func FrameFromPCM16LE(data []byte, sampleRate int) Frame {
	return Frame{
		Samples:    PCM16ToFloat(DecodePCM16LE(data)),
		SampleRate: sampleRate,
	}
}

// Len returns the number of samples
func (f Frame) Len() int {
	return len(f.Samples)
}

// Duration returns the playback duration of the frame at its sample rate
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
