package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// Defaults for the dispatcher.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 1024
	DefaultHitTimeout  = 10 * time.Second
	errorChannelBuffer = 64
)

// ErrDispatcherClosed is returned by Dispatch after shutdown began.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Deriver turns a capture into a hit.
type Deriver interface {
	Derive(ctx context.Context, c Capture) model.Hit
}

// Sink receives derived hits: the aggregate updater in inline mode, the
// stream publisher in stream mode.
type Sink interface {
	Apply(ctx context.Context, hit model.Hit) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, hit model.Hit) error

// Apply implements Sink.
func (f SinkFunc) Apply(ctx context.Context, hit model.Hit) error { return f(ctx, hit) }

// HitError reports a failed hit to Errors() consumers.
type HitError struct {
	HitID  string
	LinkID string
	Err    error
}

func (e *HitError) Error() string {
	return fmt.Sprintf("hit %s for link %s: %v", e.HitID, e.LinkID, e.Err)
}

func (e *HitError) Unwrap() error { return e.Err }

// Dispatcher runs analytics off the request path. Captures go into a
// bounded queue drained by a fixed worker pool on a context of its own,
// so a disconnecting client never cancels a hit in flight.
type Dispatcher struct {
	deriver Deriver
	sink    Sink
	logger  *slog.Logger
	metrics metrics.Recorder

	workers    int
	hitTimeout time.Duration

	queue chan Capture
	errs  chan error

	mu      sync.RWMutex
	started bool
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the worker pool size.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Capture, n)
		}
	}
}

// WithHitTimeout bounds the processing of one hit.
func WithHitTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.hitTimeout = timeout
		}
	}
}

// WithDispatcherMetrics sets the metrics recorder.
func WithDispatcherMetrics(m metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewDispatcher creates a Dispatcher. Call Start before Dispatch.
func NewDispatcher(deriver Deriver, sink Sink, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		deriver:    deriver,
		sink:       sink,
		logger:     logger.With("component", "analytics.dispatcher"),
		metrics:    metrics.NewNoop(),
		workers:    DefaultWorkers,
		hitTimeout: DefaultHitTimeout,
		queue:      make(chan Capture, DefaultQueueSize),
		errs:       make(chan error, errorChannelBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	d.baseCtx, d.cancel = context.WithCancel(context.Background())

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.logger.Info("analytics dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
}

// Dispatch enqueues a capture without blocking. A full queue drops the
// capture and reports false.
func (d *Dispatcher) Dispatch(c Capture) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.IncHitDispatched("dropped")
		d.report(&HitError{LinkID: c.Link.ID, Err: ErrDispatcherClosed})
		return false
	}

	select {
	case d.queue <- c:
		d.metrics.IncHitDispatched("queued")
		d.metrics.SetAnalyticsQueueDepth(int64(len(d.queue)))
		return true
	default:
		d.metrics.IncHitDispatched("dropped")
		d.logger.Warn("analytics_queue_full", "link_id", c.Link.ID)
		return false
	}
}

// Errors exposes processing failures. Errors are discarded when the
// channel buffer is full, so reading it is optional.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Shutdown stops accepting captures and waits for queued ones to finish.
// It implements server.ShutdownFunc.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	cancel := d.cancel
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		d.logger.Info("analytics dispatcher drained")
		return nil
	case <-ctx.Done():
		// Abort in-flight store calls; workers exit once they return.
		cancel()
		d.logger.Warn("analytics dispatcher drain timed out", "pending", len(d.queue))
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for c := range d.queue {
		d.metrics.SetAnalyticsQueueDepth(int64(len(d.queue)))
		d.process(c)
	}
}

func (d *Dispatcher) process(c Capture) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.hitTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("analytics_panic", "link_id", c.Link.ID, "panic", rec)
			d.report(&HitError{LinkID: c.Link.ID, Err: fmt.Errorf("panic: %v", rec)})
		}
	}()

	hit := d.deriver.Derive(ctx, c)
	if err := d.sink.Apply(ctx, hit); err != nil {
		d.logger.Error("hit_record_failed",
			"hit_id", hit.ID,
			"link_id", hit.LinkID,
			"error", err,
		)
		d.report(&HitError{HitID: hit.ID, LinkID: hit.LinkID, Err: err})
		return
	}
	d.logger.Debug("hit_recorded", "hit_id", hit.ID, "link_id", hit.LinkID, "test", hit.IsTestData)
}

func (d *Dispatcher) report(err error) {
	select {
	case d.errs <- err:
	default:
	}
}
