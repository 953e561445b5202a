package ports

import (
	"context"
	"time"
)

// Audit event kinds emitted by the core.
const (
	AuditLogin         = "login"
	AuditLoginFailed   = "login_failed"
	AuditLockout       = "lockout"
	AuditRotation      = "rotation"
	AuditReuseDetected = "refresh_reuse_detected"
	AuditLogout        = "logout"
)

// AuditEvent is a security-relevant occurrence published for downstream
// consumers (SIEM, alerting). Publishing is fire-and-forget.
type AuditEvent struct {
	Kind      string    `json:"kind"`
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// AuditPublisher emits audit events. Implementations must not block request
// handling; failures are logged and swallowed.
type AuditPublisher interface {
	Publish(ctx context.Context, event AuditEvent)
}
