// Package action implements dispatchable asynchronous mutations. Every dispatch
// runs on its own goroutine, shows up as a pending submission while it runs,
// and bumps the action's version exactly once when it settles.
package action

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/errs"
	"github.com/and161185/todosync/internal/reactive"
)

// Option configures an Action.
type Option func(*options)

type options struct {
	log     *zap.Logger
	timeout time.Duration
	ctx     context.Context
}

// WithLogger sets the logger used for dispatch outcomes.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithTimeout bounds every dispatch. Zero (the default) means no timeout:
// a hung call keeps its submission pending.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithContext sets the parent context of every dispatch.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// Submission is one dispatch of an action.
type Submission[I any] struct {
	seq     uint64
	input   I
	pending atomic.Bool
	err     error
	done    chan struct{}
}

// Seq is the dispatch number within its action, starting at 1.
func (s *Submission[I]) Seq() uint64 { return s.seq }

// Input is the value the action was dispatched with.
func (s *Submission[I]) Input() I { return s.input }

// Pending reports whether the dispatch is still running.
func (s *Submission[I]) Pending() bool { return s.pending.Load() }

// Done is closed once the dispatch has settled and the version was bumped.
func (s *Submission[I]) Done() <-chan struct{} { return s.done }

// Err is the dispatch result. Only meaningful after Done is closed.
func (s *Submission[I]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Action runs fn for each dispatched input.
type Action[I any] struct {
	name string
	fn   func(context.Context, I) error
	opts options

	version reactive.Signal // bumped once per settled dispatch
	changed reactive.Signal // bumped whenever the pending set changes

	mu      sync.Mutex
	seq     uint64
	pending []*Submission[I]
	lastErr error

	wg sync.WaitGroup
}

// New constructs an action named name (used in logs and errors).
func New[I any](name string, fn func(context.Context, I) error, opts ...Option) *Action[I] {
	o := options{log: zap.NewNop(), ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Action[I]{name: name, fn: fn, opts: o}
}

// Dispatch starts fn(input) in the background and returns its submission.
// Dispatches are independent and may settle in any order.
func (a *Action[I]) Dispatch(input I) *Submission[I] {
	a.mu.Lock()
	a.seq++
	sub := &Submission[I]{seq: a.seq, input: input, done: make(chan struct{})}
	sub.pending.Store(true)
	a.pending = append(a.pending, sub)
	a.mu.Unlock()
	a.changed.Bump()

	a.wg.Add(1)
	go a.execute(sub)
	return sub
}

func (a *Action[I]) execute(sub *Submission[I]) {
	defer a.wg.Done()

	ctx, cancel := a.opts.ctx, context.CancelFunc(func() {})
	if a.opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, a.opts.timeout)
	}
	start := time.Now()
	err := a.call(ctx, sub.input)
	cancel()

	fields := []zap.Field{
		zap.String("action", a.name),
		zap.Uint64("dispatch", sub.seq),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		a.opts.log.Warn("dispatch failed", append(fields, zap.Error(err))...)
	} else {
		a.opts.log.Debug("dispatch settled", fields...)
	}
	a.settle(sub, err)
}

// call runs fn, turning a panic into an error so the dispatch still settles.
func (a *Action[I]) call(ctx context.Context, input I) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.opts.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("action", a.name),
			)
			err = &errs.OperationError{Op: a.name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return a.fn(ctx, input)
}

func (a *Action[I]) settle(sub *Submission[I], err error) {
	a.mu.Lock()
	sub.err = err
	sub.pending.Store(false)
	for i, p := range a.pending {
		if p == sub {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			break
		}
	}
	a.lastErr = err
	a.mu.Unlock()

	a.changed.Bump()
	a.version.Bump()
	close(sub.done)
}

// Name returns the action name.
func (a *Action[I]) Name() string { return a.name }

// Version is the number of settled dispatches, successful or not.
func (a *Action[I]) Version() uint64 { return a.version.Get() }

// VersionSignal is bumped once per settled dispatch.
func (a *Action[I]) VersionSignal() *reactive.Signal { return &a.version }

// Changed is bumped whenever a submission is added or settles.
func (a *Action[I]) Changed() *reactive.Signal { return &a.changed }

// Pending returns the in-flight submissions in dispatch order.
func (a *Action[I]) Pending() []*Submission[I] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Submission[I](nil), a.pending...)
}

// PendingInputs returns the inputs of the in-flight submissions in dispatch order.
func (a *Action[I]) PendingInputs() []I {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]I, 0, len(a.pending))
	for _, s := range a.pending {
		out = append(out, s.input)
	}
	return out
}

// LastErr is the result of the most recently settled dispatch.
func (a *Action[I]) LastErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Wait blocks until every dispatch issued so far has settled. It must not
// run concurrently with a Dispatch that may start from an idle action; use
// the submissions' Done channels for that.
func (a *Action[I]) Wait() { a.wg.Wait() }
