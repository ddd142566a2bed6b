package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/observability/metrics"
	"github.com/parlorchat/parlor/internal/observability/tracing"
	"github.com/parlorchat/parlor/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultProfileWriteAttempts = 3
	defaultProfileRetryDelay    = 200 * time.Millisecond
	defaultEnrichTimeout        = 10 * time.Second
	rollbackTimeout             = 10 * time.Second
)

var (
	// ErrCoordinatorStarted is returned when Start is called more than once.
	ErrCoordinatorStarted = errors.New("session coordinator already started")
	// ErrCoordinatorClosed is returned by operations after Close.
	ErrCoordinatorClosed = errors.New("session coordinator is closed")
)

// SessionCoordinatorOptions groups dependencies for SessionCoordinator.
type SessionCoordinatorOptions struct {
	Backend   ports.IdentityBackend
	Documents ports.DocumentStore
	Logger    *slog.Logger
	Recorder  metrics.SessionRecorder
	Tracer    trace.Tracer

	// ProfileWriteAttempts bounds profile persistence attempts at registration (default 3).
	ProfileWriteAttempts int
	// ProfileRetryDelay is the pause between profile persistence attempts (default 200ms).
	ProfileRetryDelay time.Duration
	// EnrichTimeout bounds a single profile fetch (default 10s).
	EnrichTimeout time.Duration
}

// RegisterInput groups parameters for Register.
type RegisterInput struct {
	Email      string
	Password   string
	Username   string
	ProfileURL string
}

// SessionCoordinator is the single source of truth for who is signed in. It follows
// the identity backend's change notifications, enriches the signed-in user with the
// stored profile, and exposes login/register/logout as result values.
type SessionCoordinator struct {
	backend  ports.IdentityBackend
	profiles *ProfileDirectory
	logger   *slog.Logger
	recorder metrics.SessionRecorder
	tracer   trace.Tracer

	writeAttempts int
	retryDelay    time.Duration
	enrichTimeout time.Duration

	mu          sync.Mutex
	state       domainauth.State
	watchers    map[uint64]*watcher
	nextWatcher uint64
	unsubscribe ports.Unsubscribe
	started     bool
	closed      bool
	ready       chan struct{}
	done        chan struct{}

	baseCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type watcher struct {
	ch   chan domainauth.State
	stop func() bool
}

// NewSessionCoordinator constructs a SessionCoordinator. Call Start to begin
// following the identity backend.
func NewSessionCoordinator(opts SessionCoordinatorOptions) (*SessionCoordinator, error) {
	if opts.Backend == nil {
		return nil, errors.New("identity backend is required")
	}
	if opts.Documents == nil {
		return nil, errors.New("document store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	attempts := opts.ProfileWriteAttempts
	if attempts <= 0 {
		attempts = defaultProfileWriteAttempts
	}
	delay := opts.ProfileRetryDelay
	if delay < 0 {
		delay = 0
	} else if delay == 0 {
		delay = defaultProfileRetryDelay
	}
	enrichTimeout := opts.EnrichTimeout
	if enrichTimeout <= 0 {
		enrichTimeout = defaultEnrichTimeout
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &SessionCoordinator{
		backend:       opts.Backend,
		profiles:      NewProfileDirectory(opts.Documents),
		logger:        logger.With("component", "session_coordinator"),
		recorder:      recorder,
		tracer:        tracer,
		writeAttempts: attempts,
		retryDelay:    delay,
		enrichTimeout: enrichTimeout,
		watchers:      make(map[uint64]*watcher),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}, nil
}

// Start registers the coordinator's single identity listener.
func (c *SessionCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrCoordinatorStarted
	}
	c.started = true
	c.mu.Unlock()

	// The backend may replay the current identity synchronously, so no lock is held here.
	unsub, err := c.backend.Subscribe(c.onIdentity)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return fmt.Errorf("subscribe to identity backend: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsub()
		return ErrCoordinatorClosed
	}
	c.unsubscribe = unsub
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "session coordinator started")
	return nil
}

// Close releases the identity subscription, cancels in-flight enrichment, waits for
// it to finish, and closes every watcher channel. It is safe to call more than once.
func (c *SessionCoordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		unsub := c.unsubscribe
		c.unsubscribe = nil
		for id, w := range c.watchers {
			w.stop()
			close(w.ch)
			delete(c.watchers, id)
		}
		close(c.done)
		c.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		c.cancel()
		c.wg.Wait()
		c.logger.Info("session coordinator closed")
	})
	return nil
}

// State returns a snapshot of the current session state.
func (c *SessionCoordinator) State() domainauth.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Status returns the current authentication status.
func (c *SessionCoordinator) Status() domainauth.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Status
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (c *SessionCoordinator) CurrentUser() *domainauth.SessionUser {
	return c.State().User
}

// WaitReady blocks until the first identity event has been applied.
func (c *SessionCoordinator) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrCoordinatorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch returns a channel that receives the current state immediately and every
// later change. A slow receiver only ever sees the newest state. The channel is
// closed when ctx ends or the coordinator closes.
func (c *SessionCoordinator) Watch(ctx context.Context) <-chan domainauth.State {
	ch := make(chan domainauth.State, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.nextWatcher++
	id := c.nextWatcher
	ch <- c.state.Clone()
	w := &watcher{ch: ch}
	w.stop = context.AfterFunc(ctx, func() { c.removeWatcher(id) })
	c.watchers[id] = w
	return ch
}

func (c *SessionCoordinator) removeWatcher(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.watchers[id]; ok {
		delete(c.watchers, id)
		close(w.ch)
	}
}

// broadcastLocked publishes the current state to every watcher, replacing any
// value the watcher has not consumed yet. Callers hold c.mu.
func (c *SessionCoordinator) broadcastLocked() {
	snapshot := c.state
	for _, w := range c.watchers {
		select {
		case <-w.ch:
		default:
		}
		w.ch <- snapshot.Clone()
	}
}

// onIdentity applies one identity event from the backend.
func (c *SessionCoordinator) onIdentity(id *domainauth.Identity) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	first := !c.state.Status.Known()
	c.state.Generation++
	gen := c.state.Generation
	if id == nil {
		c.state.Status = domainauth.StatusUnauthenticated
		c.state.User = nil
	} else {
		u := domainauth.NewSessionUser(*id)
		c.state.Status = domainauth.StatusAuthenticated
		c.state.User = &u
		c.wg.Add(1)
	}
	status := c.state.Status
	c.broadcastLocked()
	if first {
		close(c.ready)
	}
	c.mu.Unlock()

	c.recorder.RecordTransition(status.String())
	if id == nil {
		c.logger.Info("session signed out", "generation", gen)
		return
	}
	c.logger.Info("session signed in", "user_id", id.UserID, "generation", gen)
	go c.enrich(gen, id.UserID)
}

// enrich fetches the profile for userID and merges it if the session still belongs
// to the same identity event.
func (c *SessionCoordinator) enrich(gen uint64, userID string) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.baseCtx, c.enrichTimeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "session.enrich",
		trace.WithAttributes(attribute.String("user.id", userID), attribute.Int64("session.generation", int64(gen))))
	defer span.End()

	start := time.Now()
	profile, found, err := c.profiles.Get(ctx, userID)
	elapsed := time.Since(start)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		if errors.Is(err, context.Canceled) && c.baseCtx.Err() != nil {
			return
		}
		c.logger.WarnContext(ctx, "profile enrichment failed", "user_id", userID, "error", err)
		c.recorder.RecordEnrichment(metrics.EnrichmentMetric{Result: metrics.ResultError, Duration: elapsed, Err: err})
		return
	case !found:
		c.logger.DebugContext(ctx, "no profile for user", "user_id", userID)
		c.recorder.RecordEnrichment(metrics.EnrichmentMetric{Result: metrics.ResultMissing, Duration: elapsed})
		return
	}

	if !c.mergeProfile(gen, userID, profile) {
		c.logger.DebugContext(ctx, "discarding stale profile", "user_id", userID, "generation", gen)
		c.recorder.RecordEnrichment(metrics.EnrichmentMetric{Result: metrics.ResultStale, Duration: elapsed})
		return
	}
	c.recorder.RecordEnrichment(metrics.EnrichmentMetric{Result: metrics.ResultSuccess, Duration: elapsed})
}

// mergeProfile merges p into the current user when the session still belongs to
// userID and, if gen is non-zero, to the identity event numbered gen.
func (c *SessionCoordinator) mergeProfile(gen uint64, userID string, p domainauth.Profile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.User == nil || c.state.User.UserID != userID {
		return false
	}
	if gen != 0 && c.state.Generation != gen {
		return false
	}
	u := c.state.User.WithProfile(p)
	c.state.User = &u
	c.broadcastLocked()
	return true
}

// Login signs in with email and password. The new state arrives through the
// identity subscription; the result only reports whether the backend accepted.
func (c *SessionCoordinator) Login(ctx context.Context, email, password string) domainauth.Result {
	ctx, span := c.tracer.Start(ctx, "session.login")
	defer span.End()
	start := time.Now()

	_, err := guard(func() (domainauth.Identity, error) { return c.backend.SignIn(ctx, email, password) })
	if err != nil {
		res := domainauth.Failed(domainauth.OperationLogin, err)
		c.finish(ctx, span, domainauth.OperationLogin, res, start)
		return res
	}
	res := domainauth.Succeeded()
	c.finish(ctx, span, domainauth.OperationLogin, res, start)
	return res
}

// Register creates an identity and persists its profile. If the profile cannot be
// written after the configured attempts, the identity is deleted again and the
// result reports failure.
func (c *SessionCoordinator) Register(ctx context.Context, in RegisterInput) domainauth.Result {
	ctx, span := c.tracer.Start(ctx, "session.register")
	defer span.End()
	start := time.Now()

	id, err := guard(func() (domainauth.Identity, error) { return c.backend.SignUp(ctx, in.Email, in.Password) })
	if err != nil {
		res := domainauth.Failed(domainauth.OperationRegister, err)
		c.finish(ctx, span, domainauth.OperationRegister, res, start)
		return res
	}
	span.SetAttributes(attribute.String("user.id", id.UserID))

	profile := domainauth.Profile{UserID: id.UserID, Username: in.Username, ProfileURL: in.ProfileURL}
	if writeErr := c.writeProfile(ctx, profile); writeErr != nil {
		err := fmt.Errorf("persist profile: %w", writeErr)
		if rbErr := c.rollback(ctx, id.UserID); rbErr != nil {
			c.logger.ErrorContext(ctx, "orphaned identity without profile",
				"user_id", id.UserID, "error", rbErr)
			err = errors.Join(err, fmt.Errorf("roll back identity: %w", rbErr))
		}
		res := domainauth.Failed(domainauth.OperationRegister, err)
		c.finish(ctx, span, domainauth.OperationRegister, res, start)
		return res
	}

	// Generation 0 merges this write into whichever generation currently shows
	// id.UserID; mergeProfile still requires the user to match.
	c.mergeProfile(0, id.UserID, profile)

	res := domainauth.Succeeded()
	res.User = &id
	c.finish(ctx, span, domainauth.OperationRegister, res, start)
	return res
}

// Logout signs out. Logging out while signed out succeeds.
func (c *SessionCoordinator) Logout(ctx context.Context) domainauth.Result {
	ctx, span := c.tracer.Start(ctx, "session.logout")
	defer span.End()
	start := time.Now()

	_, err := guard(func() (struct{}, error) { return struct{}{}, c.backend.SignOut(ctx) })
	if err != nil {
		res := domainauth.Failed(domainauth.OperationLogout, err)
		c.finish(ctx, span, domainauth.OperationLogout, res, start)
		return res
	}
	res := domainauth.Succeeded()
	c.finish(ctx, span, domainauth.OperationLogout, res, start)
	return res
}

func (c *SessionCoordinator) writeProfile(ctx context.Context, p domainauth.Profile) error {
	for attempt := 1; ; attempt++ {
		err := c.profiles.Put(ctx, p)
		if err == nil {
			return nil
		}
		if attempt >= c.writeAttempts {
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		c.logger.WarnContext(ctx, "profile write failed, retrying",
			"user_id", p.UserID, "attempt", attempt, "error", err)

		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *SessionCoordinator) rollback(ctx context.Context, userID string) error {
	// The caller's context may already be done; the identity must still go.
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	_, err := guard(func() (struct{}, error) { return struct{}{}, c.backend.DeleteUser(rbCtx, userID) })
	if err == nil {
		c.logger.WarnContext(ctx, "rolled back identity after profile write failure", "user_id", userID)
	}
	return err
}

func (c *SessionCoordinator) finish(
	ctx context.Context,
	span trace.Span,
	op domainauth.Operation,
	res domainauth.Result,
	start time.Time,
) {
	m := metrics.OperationMetric{
		Operation: string(op),
		Result:    metrics.ResultSuccess,
		Duration:  time.Since(start),
	}
	if !res.Success {
		m.Result = metrics.ResultError
		m.ErrorKind = string(res.Kind)
		m.Err = res.Err
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Kind))
		span.SetAttributes(attribute.String("session.error_kind", string(res.Kind)))
		level := slog.LevelInfo
		if res.Kind == domainauth.ErrorKindUnknown {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "session operation failed",
			"operation", string(op), "error_kind", string(res.Kind), "error", res.Err)
	}
	c.recorder.RecordOperation(m)
}

// guard runs fn and converts a panic into an error so callers always get a result.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("identity backend panicked: %v", r)
		}
	}()
	return fn()
}
