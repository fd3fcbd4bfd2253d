package schoolauth

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/campuskit/schoolauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditStatus classifies the outcome carried by an AuditEvent.
type AuditStatus = internalaudit.Status

const (
	// AuditSuccess marks a completed operation.
	AuditSuccess = internalaudit.StatusSuccess
	// AuditFail marks a rejected or failed operation.
	AuditFail = internalaudit.StatusFail
	// AuditBlocked marks an operation stopped by policy.
	AuditBlocked = internalaudit.StatusBlocked
)

// AuditSink receives AuditEvent values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based AuditSink.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an AuditSink that writes JSON-encoded events to an
// io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// ZapSink forwards audit events to a zap logger, one entry per event.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger into an AuditSink. A nil logger yields a sink
// that drops everything.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("action", event.Action),
		zap.String("status", string(event.Status)),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	if len(event.Detail) > 0 {
		fields = append(fields, zap.Any("detail", event.Detail))
	}

	if event.Status == AuditSuccess {
		s.logger.Info("audit", fields...)
	} else {
		s.logger.Warn("audit", fields...)
	}
}

const (
	auditActionLogin        = "auth.login"
	auditActionRefresh      = "auth.refresh"
	auditActionLogout       = "auth.logout"
	auditActionForcedChange = "auth.password.forced_change"
	auditActionResetRequest = "auth.reset.request"
	auditActionResetVerify  = "auth.reset.verify"
	auditActionReset        = "auth.reset.complete"
	auditActionLinkRequest  = "auth.reset_link.request"
	auditActionLinkReset    = "auth.reset_link.complete"
	auditActionResetCleanup = "auth.reset.cleanup"
)

// emitAudit builds and dispatches one event. detailFn is lazy so callers
// pay for the map only when the dispatcher is active.
func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	status AuditStatus,
	userID, sessionID string,
	cause error,
	detailFn func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		Action:    action,
		Status:    status,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if detailFn != nil {
		event.Detail = detailFn()
	}

	e.audit.Emit(ctx, event)
}
