// ABOUTME: Audio fundamentals package providing core types and the PCM codec
// ABOUTME: Defines Format, Frame and float <-> 16-bit conversions
// Package audio provides the audio types shared by capture, transport and playback.
//
// Microphone audio is produced as float samples in [-1, 1] and travels to the
// relay as signed 16-bit little-endian PCM at 16 kHz. Agent audio arrives as the
// same PCM encoding at 24 kHz and is converted back to floats for rendering.
//
// Example:
//
//	pcm := audio.FloatToPCM16(block)
//	wire := audio.EncodePCM16LE(pcm)
//
//	frame := audio.FrameFromPCM16LE(payload, audio.PlaybackSampleRate)
//	fmt.Println(frame.Duration())
package audio
