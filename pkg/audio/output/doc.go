// ABOUTME: Audio output package for playing agent speech
// ABOUTME: Provides the Sink interface with oto, malgo and paced backends
// Package output renders mono float frames to an audio device.
//
// Every backend blocks in Render until the device has taken the frame, which
// lets a caller play frames strictly one after another.
//
// Example:
//
//	sink := output.NewOto(output.OtoConfig{SampleRate: audio.PlaybackSampleRate})
//	defer sink.Close()
//	err := sink.Render(ctx, frame)
package output
