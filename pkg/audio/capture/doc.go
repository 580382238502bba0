// ABOUTME: Microphone capture package
// ABOUTME: Acquires input audio, frames it and paces outbound sends
// Package capture turns a live microphone into a steady stream of outbound PCM frames.
//
// A Source yields float blocks of arbitrary length. The Pipeline regroups them
// into fixed-size frames, discards frames while the session cannot send, and
// rate-limits what is left so that at most one frame leaves per interval. Frames
// over the limit are dropped, never queued.
//
// Backends:
//   - Malgo: miniaudio capture device (16 kHz mono float)
//   - Tone: paced sine generator for running without a microphone
package capture
