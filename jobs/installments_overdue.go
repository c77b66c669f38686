package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/crediario/internal/jobs"
)

// TaskInstallmentsMarkOverdue moves pending installments past their due date to overdue.
const TaskInstallmentsMarkOverdue = "installments:mark_overdue"

// MarkOverduePayload carries an optional reference date; zero means "now".
type MarkOverduePayload struct {
	AsOf      time.Time `json:"as_of,omitempty"`
	BatchSize int       `json:"batch_size,omitempty"`
}

// NewMarkOverdueTask constructs the overdue marking task.
func NewMarkOverdueTask(payload MarkOverduePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInstallmentsMarkOverdue, body,
		asynq.Queue(QueueMaintenance),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Unique(30*time.Minute),
	), nil
}

// OverdueMarker applies the overdue transition in batches.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time, batchSize int) (int, error)
}

// MarkOverdueJob handles TaskInstallmentsMarkOverdue.
type MarkOverdueJob struct {
	marker    OverdueMarker
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
	batchSize int
	clock     func() time.Time
}

// NewMarkOverdueJob initialises the handler. metrics may be nil.
func NewMarkOverdueJob(marker OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics, batchSize int) *MarkOverdueJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkOverdueJob{
		marker:    marker,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one overdue marking run.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.marker == nil {
		return errors.New("mark overdue: handler not configured")
	}
	payload := MarkOverduePayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("mark overdue: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.clock()
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = j.batchSize
	}

	tracker := j.metrics.Track(TaskInstallmentsMarkOverdue)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	n, err := j.marker.MarkOverdue(ctx, asOf, batch)
	tracker.AddProcessed(n)
	if err != nil {
		j.logger.Error("mark overdue failed",
			slog.Time("as_of", asOf),
			slog.Int("marked_before_failure", n),
			slog.Any("error", err))
		return err
	}
	j.logger.Info("mark overdue finished", slog.Time("as_of", asOf), slog.Int("marked", n))
	return nil
}
