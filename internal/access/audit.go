package access

import (
	"context"
	"time"
)

// Grant lifecycle actions carried on audit events.
const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
)

// AuditEvent describes a grant or revoke for the audit trail.
type AuditEvent struct {
	ActorID      int64        `json:"actorId"`
	TargetUserID int64        `json:"targetUserId"`
	ResourceID   int64        `json:"resourceId"`
	ResourceKind ResourceKind `json:"resourceKind"`
	Action       string       `json:"action"`
	At           time.Time    `json:"at"`
}

// AuditDispatcher forwards audit events, fire-and-forget: dispatch failures
// are logged by the caller and never fail the grant mutation itself. The
// asynq-backed implementation lives in the jobs package.
type AuditDispatcher interface {
	Dispatch(ctx context.Context, event AuditEvent) error
}
