package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/nosferatu/internal/models"
	"github.com/wolfeidau/nosferatu/internal/store"
	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Dispatcher is the single consumer of a task queue.
type Dispatcher struct {
	rx     *Receiver
	runs   store.TaskRunStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher that owns rx and records handled tasks
// in runs.
func NewDispatcher(rx *Receiver, runs store.TaskRunStore, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		rx:     rx,
		runs:   runs,
		logger: logger.With().Str("component", "dispatcher").Logger(),
		now:    time.Now,
	}
}

// Run handles messages in arrival order until the queue is closed and
// drained, in which case it returns nil. The first failure to handle a
// message stops the loop and is returned; the message is not retried. When
// Run returns the receiver is dropped and senders get ErrQueueClosed.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.rx.Drop()

	d.logRunCount(ctx, "Dispatcher started, waiting for messages")

	for {
		msg, ok, err := d.rx.Recv(ctx)
		if err != nil {
			return err
		}
		if !ok {
			d.logRunCount(ctx, "Task queue closed, dispatcher stopping")
			return nil
		}

		if err := d.handle(ctx, msg); err != nil {
			telemetry.GetMetrics().TaskDispatchErrorsTotal.Add(ctx, 1,
				metric.WithAttributes(attribute.String("message", messageName(msg))))
			return fmt.Errorf("failed to handle %s: %w", msg, err)
		}

		telemetry.GetMetrics().TasksDispatchedTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("message", messageName(msg))))
	}
}

// logRunCount logs msg with the number of runs recorded so far. A store that
// can't count is only worth a warning.
func (d *Dispatcher) logRunCount(ctx context.Context, msg string) {
	count, err := d.runs.CountRuns(ctx)
	if err != nil {
		d.logger.Warn().Err(err).Msg(msg)
		return
	}
	d.logger.Info().Int64("recorded_runs", count).Msg(msg)
}

// handle must have a case for every Message implementation. Reaching the
// default arm means a message type was added without a handler, which is a
// programming error rather than a runtime condition.
func (d *Dispatcher) handle(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case RunTask:
		return d.runTask(ctx, m)
	default:
		panic(fmt.Sprintf("dispatch: no handler for message %T", msg))
	}
}

func (d *Dispatcher) runTask(ctx context.Context, m RunTask) error {
	scheduledAt, err := m.ScheduledAt()
	if err != nil {
		return err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate run id: %w", err)
	}

	run := &models.TaskRun{
		RunID:       runID,
		ScheduledAt: scheduledAt,
		ProcessedAt: d.now().UTC(),
	}

	if err := d.runs.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record task run: %w", err)
	}

	telemetry.GetMetrics().TaskQueueWait.Record(ctx, float64(run.Latency().Milliseconds()))

	d.logger.Info().
		Str("run_id", run.RunID.String()).
		Time("scheduled_at", run.ScheduledAt).
		Dur("latency", run.Latency()).
		Msg("Task run recorded")

	return nil
}
