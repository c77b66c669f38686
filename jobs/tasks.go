// Package jobs runs the asynq worker, its scheduled tasks and the queue
// health endpoint.
package jobs

const (
	// QueueDefault carries tasks enqueued on demand.
	QueueDefault = "default"
	// QueueMaintenance carries periodic ledger housekeeping.
	QueueMaintenance = "maintenance"
)

// queuePriorities weights the queues served by the worker.
var queuePriorities = map[string]int{
	QueueDefault:     3,
	QueueMaintenance: 1,
}

// Queues lists the queues in reporting order.
func Queues() []string {
	return []string{QueueDefault, QueueMaintenance}
}
