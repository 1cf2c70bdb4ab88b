// Package queue implements the in-process treatment event queue: an ordered
// work list drained by at most one loop at a time, with linear-backoff
// retries and head re-insertion for retried events.
//
// The queue is deliberately non-durable. Pending and retrying events are lost
// on process restart; callers that need stronger guarantees must read the
// record/log tables rather than trust Enqueue.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Event lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultMaxRetries is the number of processing attempts before an event is
// marked terminally failed.
const DefaultMaxRetries = 3

// DefaultBaseDelay is multiplied by the retry count for linear backoff
// (5s, 10s, 15s).
const DefaultBaseDelay = 5 * time.Second

// Event is a queued unit of work. It is owned by the dispatcher for its
// whole lifetime; external callers only ever see its ID.
type Event struct {
	ID         string
	Kind       string
	Payload    interface{}
	EnqueuedAt time.Time
	Status     string
	RetryCount int
	LastError  string
}

// Handler processes one event. A nil return completes the event; any error
// (or panic) schedules a retry until the retry budget is exhausted.
type Handler func(ctx context.Context, evt *Event) error

// Snapshot is a point-in-time view of queue state for observability.
type Snapshot struct {
	Total          int       `json:"total"`
	Pending        int       `json:"pending"`
	Completed      int       `json:"completed"`
	Failed         int       `json:"failed"`
	RecentFailures []Failure `json:"recent_failures,omitempty"`
}

// Failure describes a terminally failed event.
type Failure struct {
	EventID  string    `json:"event_id"`
	Kind     string    `json:"kind"`
	Error    string    `json:"error"`
	Retries  int       `json:"retries"`
	FailedAt time.Time `json:"failed_at"`
}

const recentFailureLimit = 50

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(d *Dispatcher) { d.maxRetries = n }
}

// WithBaseDelay overrides the linear-backoff base delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(d *Dispatcher) { d.baseDelay = delay }
}

// WithClock injects a clock, letting tests drive backoff deterministically.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// Dispatcher owns the work list and the single drain loop.
type Dispatcher struct {
	mu             sync.Mutex
	work           []*Event
	draining       bool
	inFlight       int
	awaitingRetry  int
	handlers       map[string]Handler
	enqueued       int
	completed      int
	failed         int
	recentFailures []Failure

	maxRetries int
	baseDelay  time.Duration
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with the default retry policy.
func NewDispatcher(logger zerolog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:   make(map[string]Handler),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Register binds a handler to an event kind. Kinds without a handler cannot
// be enqueued.
func (d *Dispatcher) Register(kind string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Enqueue appends a new pending event to the tail of the work list and
// returns its id immediately. Processing happens on a separate goroutine; a
// drain loop is started if none is running.
func (d *Dispatcher) Enqueue(kind string, payload interface{}) (string, error) {
	d.mu.Lock()
	if _, ok := d.handlers[kind]; !ok {
		d.mu.Unlock()
		return "", fmt.Errorf("no handler registered for event kind %q", kind)
	}

	evt := &Event{
		ID:         newEventID(d.clock),
		Kind:       kind,
		Payload:    payload,
		EnqueuedAt: d.clock.Now(),
		Status:     StatusPending,
	}
	d.work = append(d.work, evt)
	d.enqueued++
	start := !d.draining
	if start {
		d.draining = true
	}
	d.mu.Unlock()

	if start {
		go d.drain()
	}
	return evt.ID, nil
}

// Status returns a snapshot of queue counters. Pending includes the event
// currently in flight and events waiting out a retry delay.
func (d *Dispatcher) Status() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	failures := make([]Failure, len(d.recentFailures))
	copy(failures, d.recentFailures)

	return Snapshot{
		Total:          d.enqueued,
		Pending:        len(d.work) + d.inFlight + d.awaitingRetry,
		Completed:      d.completed,
		Failed:         d.failed,
		RecentFailures: failures,
	}
}

// drain pops and processes head events until the list empties. Exactly one
// drain loop runs at a time; the draining flag is cleared only while holding
// the mutex with an empty list, so work arriving mid-pass is picked up
// before the loop exits.
func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.work) == 0 {
			d.draining = false
			d.mu.Unlock()
			return
		}
		evt := d.work[0]
		d.work = d.work[1:]
		evt.Status = StatusProcessing
		d.inFlight++
		handler := d.handlers[evt.Kind]
		d.mu.Unlock()

		err := d.process(handler, evt)

		d.mu.Lock()
		d.inFlight--
		if err == nil {
			evt.Status = StatusCompleted
			d.completed++
			d.mu.Unlock()
			continue
		}

		evt.RetryCount++
		evt.LastError = err.Error()

		if evt.RetryCount >= d.maxRetries {
			evt.Status = StatusFailed
			d.failed++
			d.recordFailure(evt)
			d.logger.Error().
				Str("event_id", evt.ID).
				Str("kind", evt.Kind).
				Int("retries", evt.RetryCount).
				Str("error", evt.LastError).
				Msg("event failed terminally, dropping")
			d.mu.Unlock()
			continue
		}

		evt.Status = StatusPending
		d.awaitingRetry++
		delay := d.baseDelay * time.Duration(evt.RetryCount)
		d.logger.Warn().
			Str("event_id", evt.ID).
			Str("kind", evt.Kind).
			Int("retry", evt.RetryCount).
			Dur("delay", delay).
			Str("error", evt.LastError).
			Msg("event failed, scheduling retry")
		d.clock.AfterFunc(delay, func() { d.requeueFront(evt) })
		d.mu.Unlock()
	}
}

// requeueFront re-inserts a retried event at the head of the work list.
// Retries intentionally jump ahead of events enqueued later.
func (d *Dispatcher) requeueFront(evt *Event) {
	d.mu.Lock()
	d.work = append([]*Event{evt}, d.work...)
	d.awaitingRetry--
	start := !d.draining
	if start {
		d.draining = true
	}
	d.mu.Unlock()

	if start {
		go d.drain()
	}
}

// process invokes the handler, converting panics into errors so one bad
// event can never stop the drain loop.
func (d *Dispatcher) process(h Handler, evt *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(context.Background(), evt)
}

func (d *Dispatcher) recordFailure(evt *Event) {
	d.recentFailures = append(d.recentFailures, Failure{
		EventID:  evt.ID,
		Kind:     evt.Kind,
		Error:    evt.LastError,
		Retries:  evt.RetryCount,
		FailedAt: d.clock.Now(),
	})
	if len(d.recentFailures) > recentFailureLimit {
		d.recentFailures = d.recentFailures[len(d.recentFailures)-recentFailureLimit:]
	}
}

func newEventID(clock clockwork.Clock) string {
	suffix := make([]byte, 4)
	rand.Read(suffix)
	return fmt.Sprintf("evt_%d_%s", clock.Now().UnixNano(), hex.EncodeToString(suffix))
}
