// ABOUTME: Loopback relay package documentation
// ABOUTME: Describes the development peer and its echo behaviour
// Package relay implements a development relay for the voice client.
//
// The relay speaks the same event catalogue as a production relay but has
// no speech agent behind it. It greets the user when listening starts,
// optionally selects a language and mode, and echoes each microphone frame
// back as agent audio after resampling it from 16 kHz to 24 kHz.
//
// Example:
//
//	srv := relay.New(relay.Config{Addr: ":8787", EnableMDNS: true})
//	err := srv.Run(ctx)
package relay
