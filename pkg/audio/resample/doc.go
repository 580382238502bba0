// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts 16-bit PCM between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps
// state between calls so a stream can be converted chunk by chunk.
//
// Example:
//
//	r := resample.New(16000, 24000, 1)
//	out := r.Resample(micSamples)
package resample
