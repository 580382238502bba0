// ABOUTME: Playback package for agent audio
// ABOUTME: Provides the ordered single-consumer playback queue
// Package player queues inbound agent audio and plays it in arrival order.
package player
