package identity

import (
	"context"
	"time"
)

// AuditEventType enumerates the auth audit categories.
type AuditEventType string

const (
	AuditEventLoginSuccess      AuditEventType = "auth.login.success"
	AuditEventLoginFailure      AuditEventType = "auth.login.failure"
	AuditEventMFAChallenge      AuditEventType = "auth.mfa.challenge"
	AuditEventMFAVerified       AuditEventType = "auth.mfa.verified"
	AuditEventMFAVerifyFailure  AuditEventType = "auth.mfa.verify_failure"
	AuditEventStatusTransition  AuditEventType = "account.status.changed"
	AuditEventChallengeReissued AuditEventType = "auth.mfa.challenge_reissued"
)

// ActorRef identifies who or what triggered an audited action.
type ActorRef struct {
	ID   string
	Type string
}

// AuditEvent captures audit-friendly information about an action.
type AuditEvent struct {
	EventType  AuditEventType
	Actor      ActorRef
	AccountID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// AuditSink consumes audit events for logging/telemetry purposes. Sinks
// must tolerate concurrent calls.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event AuditEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, AuditEvent) error {
	return nil
}

func normalizeAuditSink(s AuditSink) AuditSink {
	if s == nil {
		return noopAuditSink{}
	}
	return s
}
