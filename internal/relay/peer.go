// ABOUTME: One client connection on the loopback relay
// ABOUTME: Runs the reader and writer for a socket and turns mic audio into agent audio
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/voicecoach/pkg/audio"
	"github.com/harperreed/voicecoach/pkg/audio/resample"
	"github.com/harperreed/voicecoach/pkg/protocol"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sendBuffer    = 100
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

// errPeerClosed ends a connection the client closed normally
var errPeerClosed = errors.New("peer closed")

type outbound struct {
	messageType int
	data        []byte
}

type peer struct {
	conn      *websocket.Conn
	server    *Server
	logger    *zap.Logger
	send      chan outbound
	resampler *resample.Resampler
}

func newPeer(conn *websocket.Conn, server *Server) *peer {
	return &peer{
		conn:      conn,
		server:    server,
		logger:    server.logger,
		send:      make(chan outbound, sendBuffer),
		resampler: resample.New(audio.CaptureSampleRate, audio.PlaybackSampleRate, 1),
	}
}

// run serves the connection until either side ends it
func (p *peer) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.writeLoop(gctx) })
	g.Go(func() error { return p.readLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the reader
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return p.conn.Close()
	})

	err := g.Wait()
	if errors.Is(err, errPeerClosed) || ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *peer) readLoop(ctx context.Context) error {
	for {
		msgType, data, err := p.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errPeerClosed
			}
			return fmt.Errorf("read: %w", err)
		}

		switch msgType {
		case websocket.TextMessage:
			p.handleText(ctx, data)
		case websocket.BinaryMessage:
			p.handleBinary(ctx, data)
		}
	}
}

// writeLoop sends queued frames and keeps the connection alive with pings
func (p *peer) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (p *peer) handleText(ctx context.Context, data []byte) {
	in, err := protocol.ParseText(data)
	if err != nil {
		p.logger.Debug("Ignoring malformed message", zap.Error(err))
		return
	}

	switch in.Kind {
	case protocol.KindStartListening:
		p.logger.Info("Client started listening")
		p.sendJSON(ctx, protocol.KindConversation, protocol.ConversationText{
			Role:    protocol.RoleAssistant,
			Content: p.server.config.Greeting,
		})
		if lang := p.server.config.Language; lang != "" {
			p.sendJSON(ctx, protocol.KindSelectLanguage, protocol.SelectLanguage{Language: lang})
		}
		if mode := p.server.config.Mode; mode != "" {
			p.sendJSON(ctx, protocol.KindSelectMode, protocol.SelectMode{Mode: mode})
		}
	default:
		p.logger.Debug("Ignoring message", zap.String("kind", string(in.Kind)))
	}
}

// handleBinary echoes client audio as agent audio at the playback rate
func (p *peer) handleBinary(ctx context.Context, data []byte) {
	in, err := protocol.ParseBinary(data)
	if err != nil || in.Kind != protocol.KindAudioData {
		p.logger.Debug("Ignoring binary frame", zap.Error(err))
		return
	}

	pcm := p.resampler.Resample(audio.DecodePCM16LE(in.Audio))
	if len(pcm) == 0 {
		return
	}

	p.enqueue(ctx, outbound{
		messageType: websocket.BinaryMessage,
		data:        protocol.EncodeBinary(protocol.BinaryAgentAudio, audio.EncodePCM16LE(pcm)),
	})
	p.server.framesEchoed.Add(1)
}

func (p *peer) sendJSON(ctx context.Context, kind protocol.Kind, payload interface{}) {
	data, err := json.Marshal(protocol.Message{Type: kind, Payload: payload})
	if err != nil {
		p.logger.Warn("Error marshaling message", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	p.enqueue(ctx, outbound{messageType: websocket.TextMessage, data: data})
}

func (p *peer) enqueue(ctx context.Context, msg outbound) {
	select {
	case p.send <- msg:
	case <-ctx.Done():
	}
}
