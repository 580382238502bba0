// ABOUTME: Session package for the voice relay client
// ABOUTME: Provides the state machine that orchestrates transport, capture and playback
// Package session owns the lifecycle of one voice session.
//
// A Machine serializes user commands, relay messages, connection results and
// microphone acquisition results on a single goroutine, so handlers never race.
// The relay connection and the microphone are acquired off the loop and
// report back as events.
//
// Example:
//
//	m, err := session.New(session.Config{Transport: client, Capture: pipeline, Playback: queue, View: view})
//	go m.Run(ctx)
//	m.Start()
package session
