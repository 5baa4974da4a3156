// Package cache holds the session-scoped context snapshot and coordinates its
// loading so that at most one aggregation runs per session.
package cache

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/coachcontext/internal/domain"
	"example.com/coachcontext/internal/observability"
)

var (
	// ErrNoSession is returned when an operation needs an active session.
	ErrNoSession = errors.New("no active session")
	// ErrSessionEnded is delivered to callers waiting on an aggregation whose
	// session ended before it completed.
	ErrSessionEnded = errors.New("session ended before aggregation completed")
	// ErrNotOwner is returned when a caller acts on a session held by another user.
	ErrNotOwner = errors.New("session belongs to another user")

	errStaleResult = errors.New("aggregation result no longer matches the active session")
)

// Aggregator produces snapshots for a user.
type Aggregator interface {
	Aggregate(ctx context.Context, userID string) (*domain.Snapshot, error)
}

// Option configures optional behaviour for the Cache.
type Option func(*Cache)

// WithLogger overrides the logger used to report failures and discarded results.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithInvalidator registers the downstream notified when a snapshot is
// replaced or discarded.
func WithInvalidator(invalidator Invalidator) Option {
	return func(c *Cache) {
		if invalidator != nil {
			c.invalidator = invalidator
		}
	}
}

// WithInvalidationTimeout bounds each invalidator call.
func WithInvalidationTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.invalidationTimeout = timeout
		}
	}
}

// session is the slot owned by one signed-in user. A slot is never reused:
// ending a session drops it, so pointer identity tells results of different
// sessions apart even for the same user.
type session struct {
	userID   string
	ctx      context.Context
	cancel   context.CancelFunc
	status   Status
	snapshot *domain.Snapshot
	err      error
	flight   *flight
	profile  domain.ProfileAttributes
}

// Cache keeps at most one snapshot for the active session.
type Cache struct {
	aggregator          Aggregator
	invalidator         Invalidator
	invalidationTimeout time.Duration
	logger              *log.Logger

	mu      sync.Mutex
	current *session
	// pending tracks aggregation and invalidation goroutines.
	pending sync.WaitGroup
}

// New constructs an empty Cache backed by the aggregator.
func New(aggregator Aggregator, opts ...Option) *Cache {
	c := &Cache{
		aggregator:          aggregator,
		invalidator:         NoopInvalidator{},
		invalidationTimeout: 5 * time.Second,
		logger:              log.New(log.Writer(), "[cache] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state without triggering any fetch.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current
	if s == nil {
		return State{Status: StatusEmpty}
	}
	state := State{
		Status:   s.status,
		UserID:   s.userID,
		Snapshot: s.snapshot,
		Err:      s.err,
	}
	if s.flight != nil {
		state.RequestID = s.flight.id
	}
	return state
}

// StartSession opens a session for userID and starts its initial load. It is
// a no-op while the same user's session is active. A different user replaces
// the active session.
func (c *Cache) StartSession(userID string) error {
	return c.StartSessionWithProfile(userID, domain.ProfileAttributes{})
}

// StartSessionWithProfile is StartSession with a profile overlay that is in
// place before the initial load completes. For an already active session the
// overlay is merged like UpdateProfile.
func (c *Cache) StartSessionWithProfile(userID string, attrs domain.ProfileAttributes) error {
	return c.openSession(userID, attrs, true)
}

// ClaimSession is StartSessionWithProfile for callers that must not displace
// another user. It returns ErrNotOwner while a different user is signed in.
func (c *Cache) ClaimSession(userID string, attrs domain.ProfileAttributes) error {
	return c.openSession(userID, attrs, false)
}

func (c *Cache) openSession(userID string, attrs domain.ProfileAttributes, replace bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrMissingUserID
	}

	c.mu.Lock()
	if c.current != nil && c.current.userID == userID {
		c.current.profile = c.current.profile.Merge(attrs)
		c.mu.Unlock()
		return nil
	}
	if c.current != nil && !replace {
		c.mu.Unlock()
		return ErrNotOwner
	}
	previous := c.endLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{userID: userID, ctx: ctx, cancel: cancel, status: StatusEmpty, profile: attrs}
	c.current = s
	sessionsActive.Inc()
	c.startLocked(s)
	c.mu.Unlock()

	observability.RecordSessionStarted(time.Now())
	if previous != nil {
		c.invalidate(previous.userID)
	}
	return nil
}

// EndSession discards the session and its snapshot. Waiters on an in-flight
// aggregation receive ErrSessionEnded and its eventual result is dropped.
func (c *Cache) EndSession() {
	c.mu.Lock()
	previous := c.endLocked()
	c.mu.Unlock()

	if previous != nil {
		c.invalidate(previous.userID)
	}
}

func (c *Cache) endLocked() *session {
	s := c.current
	if s == nil {
		return nil
	}
	s.cancel()
	if s.flight != nil {
		s.flight.resolve(nil, ErrSessionEnded)
		s.flight = nil
	}
	c.current = nil
	sessionsActive.Dec()
	recordTransition(StatusEmpty)
	return s
}

// UpdateProfile layers attrs over the profile of snapshots assembled from now
// on. The current snapshot is left as is.
func (c *Cache) UpdateProfile(attrs domain.ProfileAttributes) error {
	return c.UpdateProfileAs("", attrs)
}

// UpdateProfileAs is UpdateProfile restricted to the session of userID. An
// empty userID matches any session.
func (c *Cache) UpdateProfileAs(userID string, attrs domain.ProfileAttributes) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOwnerLocked(userID); err != nil {
		return err
	}
	c.current.profile = c.current.profile.Merge(attrs)
	return nil
}

// Load returns a future for the session snapshot. A ready snapshot resolves
// immediately; an in-flight aggregation is shared; otherwise one is started.
func (c *Cache) Load() *Future {
	return c.load("", false)
}

// LoadAs is Load restricted to the session of userID. The future resolves
// with ErrNotOwner when another user holds the session.
func (c *Cache) LoadAs(userID string) *Future {
	return c.load(userID, false)
}

// EnsureLoaded waits for the session snapshot, loading it if needed.
func (c *Cache) EnsureLoaded(ctx context.Context) (*domain.Snapshot, error) {
	return c.Load().Wait(ctx)
}

// Reload starts a fresh aggregation even when a snapshot is ready. If one is
// already in flight the caller attaches to it instead.
func (c *Cache) Reload() *Future {
	return c.load("", true)
}

// ReloadAs is Reload restricted to the session of userID.
func (c *Cache) ReloadAs(userID string) *Future {
	return c.load(userID, true)
}

// Refresh waits for a fresh snapshot. The previous snapshot stays visible
// through State until the new one replaces it.
func (c *Cache) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	return c.Reload().Wait(ctx)
}

// load checks ownership and picks between the cached snapshot, the in-flight
// aggregation and a new one in a single critical section.
func (c *Cache) load(userID string, reload bool) *Future {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOwnerLocked(userID); err != nil {
		return &Future{f: resolvedFlight(nil, err)}
	}
	s := c.current
	switch {
	case s.status == StatusReady && !reload:
		return &Future{f: resolvedFlight(s.snapshot, nil)}
	case s.flight != nil:
		coalescedCounter.Inc()
		return &Future{f: s.flight}
	default:
		return &Future{f: c.startLocked(s)}
	}
}

func (c *Cache) checkOwnerLocked(userID string) error {
	switch {
	case c.current == nil:
		return ErrNoSession
	case userID != "" && c.current.userID != strings.TrimSpace(userID):
		return ErrNotOwner
	default:
		return nil
	}
}

// startLocked moves the slot to Loading and launches the aggregation. The
// caller holds c.mu, which makes the check-and-start a single step.
func (c *Cache) startLocked(s *session) *flight {
	f := newFlight(uuid.NewString())
	s.flight = f
	s.status = StatusLoading
	s.err = nil
	recordTransition(StatusLoading)

	c.pending.Add(1)
	go c.run(s, f)
	return f
}

func (c *Cache) run(s *session, f *flight) {
	defer c.pending.Done()

	snapshot, err := c.aggregator.Aggregate(s.ctx, s.userID)
	if applyErr := c.apply(s, f, snapshot, err); applyErr != nil {
		c.logger.Printf("discarding aggregation %s for user %s: %v", f.id, s.userID, applyErr)
		staleCounter.Inc()
		return
	}
	if err != nil {
		c.logger.Printf("aggregation %s for user %s failed: %v", f.id, s.userID, err)
		return
	}
	c.invalidate(s.userID)
}

// apply publishes the outcome of f if it still belongs to the active session.
func (c *Cache) apply(s *session, f *flight, snapshot *domain.Snapshot, err error) error {
	c.mu.Lock()
	if c.current != s || s.flight != f {
		c.mu.Unlock()
		return errStaleResult
	}

	s.flight = nil
	if err != nil {
		s.status = StatusFailed
		s.err = err
		s.snapshot = nil
	} else {
		snapshot = snapshot.WithProfile(s.profile)
		s.status = StatusReady
		s.err = nil
		s.snapshot = snapshot
	}
	recordTransition(s.status)
	c.mu.Unlock()

	if err == nil {
		observability.RecordSnapshotReady(snapshot.AssembledAt)
	}
	f.resolve(snapshot, err)
	return nil
}

func (c *Cache) invalidate(userID string) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.invalidationTimeout)
		defer cancel()
		if err := c.invalidator.Invalidate(ctx, userID); err != nil {
			c.logger.Printf("invalidation for user %s failed: %v", userID, err)
		}
	}()
}

// Close ends the active session and waits for abandoned aggregations and
// outstanding invalidations to return.
func (c *Cache) Close() {
	c.EndSession()
	c.pending.Wait()
}
