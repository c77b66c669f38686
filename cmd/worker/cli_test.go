package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/odyssey-erp/crediario/internal/testing/guard"
	"github.com/odyssey-erp/crediario/jobs"
)

type stubOps struct {
	enqueued []jobs.MarkOverduePayload
	queues   map[string]*asynq.QueueInfo
	err      error
}

func (s *stubOps) EnqueueMarkOverdue(ctx context.Context, payload jobs.MarkOverduePayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.enqueued = append(s.enqueued, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueMaintenance}, nil
}

func (s *stubOps) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.queues[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestEnqueueOverdueCommand(t *testing.T) {
	ops := &stubOps{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	code := dispatch(context.Background(), ops, []string{"enqueue-overdue", "-as-of", "2025-04-01", "-batch", "50"}, stdout, stderr)
	require.Equal(t, 0, code, stderr.String())
	require.Len(t, ops.enqueued, 1)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), ops.enqueued[0].AsOf)
	assert.Equal(t, 50, ops.enqueued[0].BatchSize)
	assert.Contains(t, stdout.String(), "enqueued task-1 on maintenance")
}

func TestEnqueueOverdueCommandRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"enqueue-overdue", "-as-of", "01/04/2025"},
		{"enqueue-overdue", "-batch", "-1"},
		{"enqueue-overdue", "-unknown"},
	} {
		ops := &stubOps{}
		code := dispatch(context.Background(), ops, args, new(bytes.Buffer), new(bytes.Buffer))
		assert.Equal(t, 2, code, args)
		assert.Empty(t, ops.enqueued)
	}

	ops := &stubOps{err: errors.New("redis down")}
	stderr := new(bytes.Buffer)
	assert.Equal(t, 1, dispatch(context.Background(), ops, []string{"enqueue-overdue"}, new(bytes.Buffer), stderr))
	assert.Contains(t, stderr.String(), "redis down")
}

func TestQueuesCommand(t *testing.T) {
	ops := &stubOps{queues: map[string]*asynq.QueueInfo{
		jobs.QueueMaintenance: {Queue: jobs.QueueMaintenance, Pending: 2, Retry: 1},
	}}
	stdout := new(bytes.Buffer)

	require.Equal(t, 0, dispatch(context.Background(), ops, []string{"queues"}, stdout, new(bytes.Buffer)))

	var stats []QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[0])
	assert.Equal(t, 2, stats[1].Pending)
	assert.Equal(t, 1, stats[1].Retry)
}

func TestUnknownCommand(t *testing.T) {
	stderr := new(bytes.Buffer)
	assert.Equal(t, 2, dispatch(context.Background(), &stubOps{}, []string{"drain"}, new(bytes.Buffer), stderr))
	assert.Contains(t, stderr.String(), `unknown command "drain"`)
	assert.Equal(t, 2, dispatch(context.Background(), &stubOps{}, nil, new(bytes.Buffer), new(bytes.Buffer)))
}
