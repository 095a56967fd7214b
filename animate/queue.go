package animate

import "time"

// DefaultSettleDelay is how long deferred removals wait after a transition
// starts before they are applied.
const DefaultSettleDelay = 300 * time.Millisecond

// Queue holds work deferred until the current transition has settled.
//
// All tasks share one deadline, armed by the first task enqueued while the
// queue is empty. Nothing runs on its own: the owner calls RunDue from its
// loop, or Flush to run everything immediately. Tasks always run in the
// order they were enqueued, including tasks enqueued by a running task.
type Queue struct {
	delay time.Duration
	now   func() time.Time

	tasks    []func()
	deadline time.Time
	armed    bool
}

// NewQueue creates a queue whose tasks become due delay after the first of
// them was enqueued. A nil now uses the wall clock.
func NewQueue(delay time.Duration, now func() time.Time) *Queue {
	if delay < 0 {
		delay = 0
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{delay: delay, now: now}
}

// Delay returns the settle delay.
func (q *Queue) Delay() time.Duration {
	return q.delay
}

// Enqueue defers fn until the queue is next processed.
func (q *Queue) Enqueue(fn func()) {
	q.tasks = append(q.tasks, fn)
	if !q.armed {
		q.deadline = q.now().Add(q.delay)
		q.armed = true
	}
}

// Pending returns the number of tasks waiting to run.
func (q *Queue) Pending() int {
	return len(q.tasks)
}

// Deadline returns when the pending tasks become due.
func (q *Queue) Deadline() (time.Time, bool) {
	return q.deadline, q.armed
}

// RunDue runs every pending task if the deadline has passed and returns how
// many ran.
func (q *Queue) RunDue() int {
	if !q.armed || q.now().Before(q.deadline) {
		return 0
	}
	return q.Flush()
}

// Flush runs every pending task now, regardless of the deadline.
func (q *Queue) Flush() int {
	ran := 0
	for i := 0; i < len(q.tasks); i++ {
		q.tasks[i]()
		ran++
	}
	q.tasks = q.tasks[:0]
	q.armed = false
	return ran
}
