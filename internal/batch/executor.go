// Package batch implements a micro-batching executor: concurrent callers
// submit single items, one background worker groups them into batches
// bounded by size and delay, runs the batch function once per group, and
// fans the results back out positionally.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-orpheus-tts/internal/future"
)

var (
	// ErrClosed is returned for submissions after Close, and for items that
	// were still queued when the worker stopped.
	ErrClosed = errors.New("batch: executor closed")

	// ErrResultCount is returned to every item of a batch whose function
	// returned a different number of outputs than it received inputs.
	ErrResultCount = errors.New("batch: output count does not match input count")

	// ErrWorkerPanic marks a batch whose function panicked. The worker does
	// not survive it.
	ErrWorkerPanic = errors.New("batch: worker panicked")
)

// Func runs inference over a batch of inputs. It must return exactly one
// output per input, in input order.
type Func[In, Out any] func(ctx context.Context, inputs []In) ([]Out, error)

// Observer is notified after each executed batch.
type Observer func(size int, elapsed time.Duration, err error)

type options struct {
	maxBatchSize int
	maxDelay     time.Duration
	queueSize    int
	logger       *slog.Logger
	observer     Observer
}

func defaultOptions() options {
	return options{
		maxBatchSize: 8,
		maxDelay:     10 * time.Millisecond,
		queueSize:    256,
		logger:       slog.Default(),
	}
}

// Option configures an Executor.
type Option func(*options)

// WithMaxBatchSize caps the number of items handed to one Func call.
func WithMaxBatchSize(n int) Option {
	return func(o *options) { o.maxBatchSize = n }
}

// WithMaxDelay bounds how long the worker waits for more items after the
// first item of a batch arrives.
func WithMaxDelay(d time.Duration) Option {
	return func(o *options) { o.maxDelay = d }
}

// WithQueueSize sets the capacity of the shared submission queue.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// WithLogger sets the logger used for worker failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver registers a callback invoked after every batch.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

type item[In, Out any] struct {
	input In
	fut   *future.Future[Out]
}

// Executor batches submissions to a Func. It is safe for concurrent use.
type Executor[In, Out any] struct {
	fn    Func[In, Out]
	opts  options
	log   *slog.Logger
	queue chan item[In, Out]

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
	closed chan struct{}
}

// New returns an Executor and starts its worker.
func New[In, Out any](fn Func[In, Out], optFns ...Option) *Executor[In, Out] {
	opts := defaultOptions()
	for _, o := range optFns {
		o(&opts)
	}
	if opts.maxBatchSize < 1 {
		opts.maxBatchSize = 1
	}
	if opts.queueSize < 0 {
		opts.queueSize = 0
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor[In, Out]{
		fn:     fn,
		opts:   opts,
		log:    opts.logger,
		queue:  make(chan item[In, Out], opts.queueSize),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go e.run()
	return e
}

// Submit enqueues input and blocks until its batch has run, ctx is done, or
// timeout elapses (timeout <= 0 means no extra bound). A timed-out caller
// gets future.ErrTimeout; the batch itself keeps running for the others.
func (e *Executor[In, Out]) Submit(ctx context.Context, input In, timeout time.Duration) (Out, error) {
	var zero Out

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	it := item[In, Out]{input: input, fut: future.New[Out]()}

	select {
	case <-e.stop:
		return zero, ErrClosed
	case <-e.done:
		return zero, ErrClosed
	default:
	}

	select {
	case e.queue <- it:
	case <-e.stop:
		return zero, ErrClosed
	case <-e.done:
		return zero, ErrClosed
	case <-waitCtx.Done():
		return zero, e.waitErr(ctx, waitCtx)
	}

	select {
	case <-it.fut.Done():
	case <-e.done:
		// The worker is gone; nothing else will complete this item.
		it.fut.Fail(ErrClosed)
	case <-waitCtx.Done():
		if !it.fut.Resolved() {
			return zero, e.waitErr(ctx, waitCtx)
		}
	}
	return it.fut.Wait(context.Background(), 0)
}

func (e *Executor[In, Out]) waitErr(parent, waitCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return future.ErrTimeout
	}
	return waitCtx.Err()
}

// Close stops the worker, cancels the in-flight batch context and fails any
// items that were still queued. It is idempotent.
func (e *Executor[In, Out]) Close() {
	select {
	case <-e.closed:
	default:
		close(e.closed)
		close(e.stop)
		e.cancel()
	}
	<-e.done
}

// Done is closed when the worker has exited, either via Close or after a
// fatal panic in the batch function.
func (e *Executor[In, Out]) Done() <-chan struct{} {
	return e.done
}

func (e *Executor[In, Out]) run() {
	defer close(e.done)
	defer e.drain(ErrClosed)

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		var first item[In, Out]
		select {
		case first = <-e.queue:
		case <-e.stop:
			return
		}

		if fatal := e.execute(e.collect(first)); fatal {
			return
		}
	}
}

// collect pulls further items until the batch is full or maxDelay has
// passed since the first item and nothing else is ready.
func (e *Executor[In, Out]) collect(first item[In, Out]) []item[In, Out] {
	batch := make([]item[In, Out], 1, e.opts.maxBatchSize)
	batch[0] = first

	timer := time.NewTimer(e.opts.maxDelay)
	defer timer.Stop()
	expired := e.opts.maxDelay <= 0

	for len(batch) < e.opts.maxBatchSize {
		if expired {
			select {
			case it := <-e.queue:
				batch = append(batch, it)
				continue
			default:
				return batch
			}
		}

		select {
		case it := <-e.queue:
			batch = append(batch, it)
		case <-timer.C:
			expired = true
		case <-e.stop:
			return batch
		}
	}
	return batch
}

func (e *Executor[In, Out]) execute(batch []item[In, Out]) (fatal bool) {
	inputs := make([]In, len(batch))
	for i, it := range batch {
		inputs[i] = it.input
	}

	start := time.Now()
	outputs, err := e.call(inputs)
	if errors.Is(err, ErrWorkerPanic) {
		fatal = true
	}
	if err == nil && len(outputs) != len(inputs) {
		err = fmt.Errorf("%w: got %d outputs for %d inputs", ErrResultCount, len(outputs), len(inputs))
	}
	elapsed := time.Since(start)

	if e.opts.observer != nil {
		e.opts.observer(len(batch), elapsed, err)
	}

	if err != nil {
		e.log.Warn("batch failed",
			slog.Int("size", len(batch)),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		for _, it := range batch {
			it.fut.Fail(err)
		}
		return fatal
	}

	for i, it := range batch {
		it.fut.Resolve(outputs[i])
	}
	return false
}

func (e *Executor[In, Out]) call(inputs []In) (outputs []Out, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("batch worker panicked; stopping", slog.Any("panic", r))
			outputs = nil
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return e.fn(e.ctx, inputs)
}

func (e *Executor[In, Out]) drain(err error) {
	for {
		select {
		case it := <-e.queue:
			it.fut.Fail(err)
		default:
			return
		}
	}
}
