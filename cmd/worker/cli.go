package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/crediario/internal/app"
	"github.com/odyssey-erp/crediario/jobs"
)

// queueOps is the slice of asynq used by the operator commands.
type queueOps interface {
	EnqueueMarkOverdue(ctx context.Context, payload jobs.MarkOverduePayload) (*asynq.TaskInfo, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

type asynqOps struct {
	*jobs.Client
	*asynq.Inspector
}

func runCommand(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	opt := cfg.RedisOptions().AsynqOpt()
	client := jobs.NewClient(opt)
	inspector := asynq.NewInspector(opt)
	defer func() {
		_ = client.Close()
		_ = inspector.Close()
	}()
	return dispatch(ctx, asynqOps{Client: client, Inspector: inspector}, args, stdout, stderr)
}

// QueueStats summarises one queue for the queues command.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
}

func dispatch(ctx context.Context, ops queueOps, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: worker [enqueue-overdue [-as-of YYYY-MM-DD] [-batch N] | queues]")
		return 2
	}
	switch args[0] {
	case "enqueue-overdue":
		return enqueueOverdue(ctx, ops, args[1:], stdout, stderr)
	case "queues":
		return inspectQueues(ops, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}
}

func enqueueOverdue(ctx context.Context, ops queueOps, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("enqueue-overdue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asOf := fs.String("as-of", "", "reference date (YYYY-MM-DD), defaults to now")
	batch := fs.Int("batch", 0, "rows per batch, defaults to OVERDUE_BATCH_SIZE")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var payload jobs.MarkOverduePayload
	if *asOf != "" {
		date, err := time.Parse("2006-01-02", *asOf)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "enqueue-overdue: invalid -as-of %q\n", *asOf)
			return 2
		}
		payload.AsOf = date
	}
	if *batch < 0 {
		_, _ = fmt.Fprintln(stderr, "enqueue-overdue: -batch must not be negative")
		return 2
	}
	payload.BatchSize = *batch

	info, err := ops.EnqueueMarkOverdue(ctx, payload)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "enqueue-overdue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s on %s\n", info.ID, info.Queue)
	return 0
}

func inspectQueues(ops queueOps, stdout, stderr io.Writer) int {
	queues := jobs.Queues()
	out := make([]QueueStats, 0, len(queues))
	for _, queue := range queues {
		stats := QueueStats{Queue: queue}
		info, err := ops.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			_, _ = fmt.Fprintf(stderr, "queues: %s: %v\n", queue, err)
			return 1
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Failed = info.Failed
		}
		out = append(out, stats)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_, _ = fmt.Fprintf(stderr, "queues: %v\n", err)
		return 1
	}
	return 0
}
