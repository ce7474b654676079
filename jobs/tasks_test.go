package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborwatch/harborwatch/internal/access"
	jobmetrics "github.com/harborwatch/harborwatch/internal/jobs"
	_ "github.com/harborwatch/harborwatch/testing"
)

type stubRecorder struct {
	events []access.AuditEvent
	err    error
}

func (r *stubRecorder) Record(ctx context.Context, event access.AuditEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func TestAccessAuditTaskRoundTrip(t *testing.T) {
	event := access.AuditEvent{
		ActorID:      2,
		TargetUserID: 7,
		ResourceID:   10,
		ResourceKind: access.KindFleet,
		Action:       access.AuditActionGrant,
		At:           time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}

	task, err := NewAccessAuditTask(event)
	require.NoError(t, err)
	assert.Equal(t, TaskAccessAudit, task.Type())

	var decoded access.AuditEvent
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, event, decoded)
}

func TestAccessAuditHandlerRecords(t *testing.T) {
	recorder := &stubRecorder{}
	registry := prometheus.NewRegistry()
	handler := NewAccessAuditHandler(recorder, jobmetrics.NewMetrics(registry))

	event := access.AuditEvent{ActorID: 2, TargetUserID: 7, ResourceID: 10, ResourceKind: access.KindFleet, Action: access.AuditActionGrant}
	task, err := NewAccessAuditTask(event)
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, recorder.events, 1)
	assert.Equal(t, int64(7), recorder.events[0].TargetUserID)

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "harborwatch_jobs_total", "runs land in the injected registry")
}

func TestAccessAuditHandlerDropsMalformedPayload(t *testing.T) {
	handler := NewAccessAuditHandler(&stubRecorder{}, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := handler(context.Background(), asynq.NewTask(TaskAccessAudit, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry, "a payload that can never decode must not be retried")
}

func TestAccessAuditHandlerPropagatesInsertFailure(t *testing.T) {
	boom := errors.New("insert failed")
	handler := NewAccessAuditHandler(&stubRecorder{err: boom}, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewAccessAuditTask(access.AuditEvent{ActorID: 2})
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.ErrorIs(t, err, boom, "a failed insert is retried by asynq")
}
