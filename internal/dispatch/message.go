package dispatch

import (
	"fmt"
	"time"
)

// Message is a unit of background work sent from a request handler to the
// dispatcher. The set of messages is closed: only types in this package can
// implement it, and Dispatcher.handle must have a case for each one.
type Message interface {
	fmt.Stringer
	message()
}

// RunTask asks the dispatcher to run the scheduled task.
type RunTask struct {
	// Timestamp is when the task was scheduled, in RFC 3339 format.
	Timestamp string
}

// NewRunTask returns a RunTask scheduled at t.
func NewRunTask(t time.Time) RunTask {
	return RunTask{Timestamp: t.UTC().Format(time.RFC3339Nano)}
}

func (RunTask) message() {}

func (m RunTask) String() string {
	return "RunTask{timestamp=" + m.Timestamp + "}"
}

// ScheduledAt parses Timestamp.
func (m RunTask) ScheduledAt() (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid task timestamp %q: %w", m.Timestamp, err)
	}
	return t, nil
}
