package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfeidau/nosferatu/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultCapacity is the queue capacity used by the server.
const DefaultCapacity = 32

// ErrQueueClosed is returned by Enqueue once the queue is closed or its
// receiving side has been dropped.
var ErrQueueClosed = errors.New("task queue closed")

// queue is the state shared by the two halves.
type queue struct {
	ch chan Message

	// mu guards closed. Senders hold it for reading while they send so
	// that Close never closes ch under an in-flight send.
	mu     sync.RWMutex
	closed bool

	dropped  chan struct{} // closed when the receiver goes away
	dropOnce sync.Once
}

// Sender is the producing half of a task queue. A single Sender may be
// shared by any number of goroutines.
type Sender struct {
	q *queue
}

// Receiver is the consuming half of a task queue. It must be owned by
// exactly one goroutine.
type Receiver struct {
	q *queue
}

// NewQueue creates a bounded FIFO queue holding at most capacity messages.
// The capacity is fixed for the lifetime of the queue.
func NewQueue(capacity int) (*Sender, *Receiver) {
	if capacity < 1 {
		capacity = 1
	}
	q := &queue{
		ch:      make(chan Message, capacity),
		dropped: make(chan struct{}),
	}
	return &Sender{q: q}, &Receiver{q: q}
}

// Enqueue adds msg to the queue. It blocks while the queue is full and
// returns once the message is accepted, the queue is closed or dropped
// (ErrQueueClosed), or ctx is done.
func (s *Sender) Enqueue(ctx context.Context, msg Message) error {
	s.q.mu.RLock()
	defer s.q.mu.RUnlock()

	if s.q.closed {
		return ErrQueueClosed
	}

	select {
	case <-s.q.dropped:
		return ErrQueueClosed
	default:
	}

	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("message", messageName(msg)))

	// Fast path: room in the buffer.
	select {
	case s.q.ch <- msg:
		metrics.TasksEnqueuedTotal.Add(ctx, 1, attrs)
		return nil
	default:
	}

	metrics.TaskQueueFullTotal.Add(ctx, 1, attrs)

	select {
	case s.q.ch <- msg:
		metrics.TasksEnqueuedTotal.Add(ctx, 1, attrs)
		return nil
	case <-s.q.dropped:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of production. Messages already queued are still
// delivered; later Enqueue calls fail with ErrQueueClosed. Close is
// idempotent.
func (s *Sender) Close() {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return
	}
	s.q.closed = true
	close(s.q.ch)
}

// Cap returns the fixed capacity of the queue.
func (s *Sender) Cap() int {
	return cap(s.q.ch)
}

// Len returns the number of queued messages.
func (s *Sender) Len() int {
	return len(s.q.ch)
}

// Recv blocks until a message is available. ok is false once the queue is
// closed and drained. It returns ctx.Err() if ctx is done first.
func (r *Receiver) Recv(ctx context.Context) (msg Message, ok bool, err error) {
	select {
	case msg, ok = <-r.q.ch:
		return msg, ok, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Drop releases the receiving side. Blocked and future senders fail with
// ErrQueueClosed.
func (r *Receiver) Drop() {
	r.q.dropOnce.Do(func() {
		close(r.q.dropped)
	})
}

func messageName(msg Message) string {
	switch msg.(type) {
	case RunTask:
		return "run_task"
	default:
		return "unknown"
	}
}
