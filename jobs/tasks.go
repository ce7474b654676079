// Package jobs hosts asynq task definitions and the background worker.
package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/harborwatch/harborwatch/internal/access"
	jobmetrics "github.com/harborwatch/harborwatch/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAccessAudit is the task type for persisting grant/revoke audit
	// events.
	TaskAccessAudit = "access:audit"
)

// NewAccessAuditTask constructs an Asynq task carrying one audit event.
func NewAccessAuditTask(event access.AuditEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccessAudit, data), nil
}

// AuditRecorder persists audit events; implemented by the audit service.
type AuditRecorder interface {
	Record(ctx context.Context, event access.AuditEvent) error
}

// NewAccessAuditHandler builds the worker-side handler for TaskAccessAudit.
// A malformed payload is dropped rather than retried; a failed insert is
// retried by asynq. Metrics are injected by the worker so there is no
// package-level registry.
func NewAccessAuditHandler(recorder AuditRecorder, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("access_audit")
		var event access.AuditEvent
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		return tracker.End(recorder.Record(ctx, event))
	}
}

// AuditDispatcher queues audit events for the worker. Satisfies
// access.AuditDispatcher.
type AuditDispatcher struct {
	client *Client
}

// NewAuditDispatcher constructs the dispatcher.
func NewAuditDispatcher(client *Client) *AuditDispatcher {
	return &AuditDispatcher{client: client}
}

// Dispatch enqueues the event. The caller treats failures as log-and-continue;
// the grant mutation has already committed.
func (d *AuditDispatcher) Dispatch(ctx context.Context, event access.AuditEvent) error {
	task, err := NewAccessAuditTask(event)
	if err != nil {
		return err
	}
	_, err = d.client.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

var _ access.AuditDispatcher = (*AuditDispatcher)(nil)
