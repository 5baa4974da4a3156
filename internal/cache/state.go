package cache

import (
	"context"
	"sync"

	"example.com/coachcontext/internal/domain"
)

// Status is the tag of a cache State.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// State is a point-in-time view of the session slot.
//
// While Loading after a refresh, Snapshot still carries the previous value so
// readers can keep using it until the new one lands.
type State struct {
	Status    Status
	UserID    string
	RequestID string
	Snapshot  *domain.Snapshot
	Err       error
}

// flight is one in-flight aggregation. Every caller that attaches to it
// receives the same result.
type flight struct {
	id       string
	done     chan struct{}
	once     sync.Once
	snapshot *domain.Snapshot
	err      error
}

func newFlight(id string) *flight {
	return &flight{id: id, done: make(chan struct{})}
}

func resolvedFlight(snapshot *domain.Snapshot, err error) *flight {
	f := newFlight("")
	f.resolve(snapshot, err)
	return f
}

// resolve settles the flight. Only the first call has any effect.
func (f *flight) resolve(snapshot *domain.Snapshot, err error) {
	f.once.Do(func() {
		f.snapshot = snapshot
		f.err = err
		close(f.done)
	})
}

// Future is the pending result of EnsureLoaded or Refresh.
type Future struct {
	f *flight
}

// Done is closed once the result is available.
func (fu *Future) Done() <-chan struct{} {
	return fu.f.done
}

// RequestID identifies the aggregation the future is attached to. It is empty
// for futures served from the cache without any work.
func (fu *Future) RequestID() string {
	return fu.f.id
}

// Wait blocks until the result is available or ctx is done. Cancelling ctx
// abandons only this wait; the aggregation keeps running for other callers.
func (fu *Future) Wait(ctx context.Context) (*domain.Snapshot, error) {
	select {
	case <-fu.f.done:
		return fu.f.snapshot, fu.f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
