// Package resource implements an asynchronously derived value that is
// re-fetched whenever one of its source signals changes.
package resource

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/todosync/internal/reactive"
)

// State of a resource.
type State int

const (
	// Idle: no fetch started yet.
	Idle State = iota
	// Loading: a fetch is in flight; the previous value is still served.
	Loading
	// Ready: the latest fetch settled, with a value or an error.
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Snapshot is the latest observable state of a resource.
type Snapshot[T any] struct {
	State State
	// Value is the last successfully fetched value. It is kept while a new
	// fetch is in flight and when a fetch fails.
	Value T
	// Err is the error of the latest settled fetch, nil if it succeeded.
	Err error
	// Loaded reports whether at least one fetch has settled.
	Loaded bool
	// Versions are the source versions the latest settled fetch started from.
	Versions reactive.Versions
}

// Resource re-runs fetch whenever its sources change. Bursts of source changes
// during a fetch are coalesced into one follow-up fetch, which always starts
// after the last change it observed, so the value never ends up stale.
type Resource[T any] struct {
	name    string
	fetch   func(context.Context) (T, error)
	sources []*reactive.Signal
	log     *zap.Logger

	manual  reactive.Signal
	changed reactive.Signal

	mu      sync.Mutex
	snap    Snapshot[T]
	fetches uint64
}

// New constructs a resource; call Run to start fetching.
func New[T any](name string, fetch func(context.Context) (T, error), sources []*reactive.Signal, log *zap.Logger) *Resource[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resource[T]{name: name, fetch: fetch, sources: sources, log: log}
}

// Run fetches once, then again after every source change, until ctx is done.
func (r *Resource[T]) Run(ctx context.Context) error {
	wake := make(chan struct{}, 1)
	cancel := reactive.NotifyAll(wake, append([]*reactive.Signal{&r.manual}, r.sources...)...)
	defer cancel()

	var (
		last       reactive.Versions
		lastManual uint64
		fetched    bool
	)
	for {
		cur := reactive.Snapshot(r.sources...)
		manual := r.manual.Get()
		if !fetched || !cur.Equal(last) || manual != lastManual {
			r.load(ctx, cur)
			if err := ctx.Err(); err != nil {
				return err
			}
			last, lastManual, fetched = cur, manual, true
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}

func (r *Resource[T]) load(ctx context.Context, versions reactive.Versions) {
	r.mu.Lock()
	r.snap.State = Loading
	r.mu.Unlock()
	r.changed.Bump()

	start := time.Now()
	v, err := r.fetch(ctx)
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	if err == nil {
		r.snap.Value = v
	}
	r.snap.Err = err
	r.snap.State = Ready
	r.snap.Loaded = true
	r.snap.Versions = versions
	r.fetches++
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("resource", r.name),
		zap.Uint64s("versions", versions),
		zap.Duration("dur", time.Since(start)),
	}
	if err != nil {
		r.log.Warn("fetch failed", append(fields, zap.Error(err))...)
	} else {
		r.log.Debug("fetched", fields...)
	}
	r.changed.Bump()
}

// Refetch asks Run for one more fetch even though no source changed.
func (r *Resource[T]) Refetch() { r.manual.Bump() }

// Latest returns the current snapshot.
func (r *Resource[T]) Latest() Snapshot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	s.Versions = append(reactive.Versions(nil), r.snap.Versions...)
	return s
}

// Fetches is the number of settled fetches.
func (r *Resource[T]) Fetches() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// Changed is bumped on every state transition.
func (r *Resource[T]) Changed() *reactive.Signal { return &r.changed }

// Sources returns the current versions of the source signals.
func (r *Resource[T]) Sources() reactive.Versions { return reactive.Snapshot(r.sources...) }

// WaitFor blocks until a fetch that started at or after want has settled.
func (r *Resource[T]) WaitFor(ctx context.Context, want reactive.Versions) (Snapshot[T], error) {
	ch := make(chan struct{}, 1)
	cancel := r.changed.Notify(ch)
	defer cancel()

	for {
		s := r.Latest()
		if s.Loaded && s.Versions.AtLeast(want) {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ch:
		}
	}
}
