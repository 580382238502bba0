// ABOUTME: Voice relay wire protocol package
// ABOUTME: Defines relay events and the WebSocket client
// Package protocol implements the voice relay wire protocol.
//
// Control events travel as JSON text frames shaped {"type": ..., "payload": ...}.
// Audio travels as binary frames: one type byte followed by 16-bit
// little-endian mono PCM.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{URL: "ws://localhost:8765/ws", OnMessage: handle})
//	err := client.Connect(ctx)
//	err = client.Send(protocol.KindStartListening, nil)
package protocol
