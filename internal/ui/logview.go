// ABOUTME: Streaming log view for running without the TUI
// ABOUTME: Writes session state changes, turns and notices as structured log lines
package ui

import (
	"github.com/harperreed/voicecoach/internal/session"
	"go.uber.org/zap"
)

// LogView implements session.View on a logger
type LogView struct {
	logger *zap.Logger
}

// NewLogView creates a log view
func NewLogView(logger *zap.Logger) *LogView {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogView{logger: logger.Named("view")}
}

func (v *LogView) Render(s session.State) {
	v.logger.Info("Session",
		zap.String("session_id", s.SessionID),
		zap.Stringer("connection", s.Connection),
		zap.Stringer("recording", s.Recording),
		zap.String("language", s.Language),
		zap.String("mode", s.Mode))
}

func (v *LogView) AppendTurn(t session.Turn) {
	v.logger.Info(t.Text, zap.String("speaker", string(t.Speaker)))
}

func (v *LogView) Notify(n session.Notice) {
	if n.Level == session.NoticeError {
		v.logger.Error(n.Text)
		return
	}
	v.logger.Info(n.Text)
}

var _ session.View = (*LogView)(nil)
