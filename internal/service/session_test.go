package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/mocks"
	fakes "github.com/parlorchat/parlor/internal/mocks/auth"
	"github.com/parlorchat/parlor/internal/observability/metrics"
	"github.com/parlorchat/parlor/internal/ports"
)

type recordingRecorder struct {
	mu          sync.Mutex
	operations  []metrics.OperationMetric
	enrichments []metrics.EnrichmentMetric
	transitions []string
}

func (r *recordingRecorder) RecordOperation(m metrics.OperationMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, m)
}

func (r *recordingRecorder) RecordEnrichment(m metrics.EnrichmentMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrichments = append(r.enrichments, m)
}

func (r *recordingRecorder) RecordTransition(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, status)
}

func (r *recordingRecorder) enrichmentResults() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.enrichments))
	for _, e := range r.enrichments {
		out = append(out, e.Result)
	}
	return out
}

type coordinatorFixture struct {
	backend  *fakes.FakeIdentityBackend
	docs     *fakes.MemoryDocumentStore
	recorder *recordingRecorder
	coord    *SessionCoordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		backend:  fakes.NewFakeIdentityBackend(),
		docs:     fakes.NewMemoryDocumentStore(),
		recorder: &recordingRecorder{},
	}
	coord, err := NewSessionCoordinator(SessionCoordinatorOptions{
		Backend:           f.backend,
		Documents:         f.docs,
		Recorder:          f.recorder,
		ProfileRetryDelay: -1,
	})
	require.NoError(t, err)
	f.coord = coord
	t.Cleanup(func() { _ = coord.Close() })
	return f
}

func (f *coordinatorFixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.coord.Start(context.Background()))
}

func TestNewSessionCoordinator_RequiresDependencies(t *testing.T) {
	_, err := NewSessionCoordinator(SessionCoordinatorOptions{Documents: fakes.NewMemoryDocumentStore()})
	require.Error(t, err)
	_, err = NewSessionCoordinator(SessionCoordinatorOptions{Backend: fakes.NewFakeIdentityBackend()})
	require.Error(t, err)
}

func TestSessionCoordinator_UnknownUntilFirstEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := mocks.NewMockIdentityBackend(ctrl)

	var listener ports.IdentityListener
	unsubscribed := 0
	backend.EXPECT().Subscribe(gomock.Any()).DoAndReturn(func(l ports.IdentityListener) (ports.Unsubscribe, error) {
		listener = l
		return func() { unsubscribed++ }, nil
	})

	coord, err := NewSessionCoordinator(SessionCoordinatorOptions{
		Backend:   backend,
		Documents: fakes.NewMemoryDocumentStore(),
	})
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))

	state := coord.State()
	assert.Equal(t, domainauth.StatusUnknown, state.Status)
	_, known := state.IsAuthenticated()
	assert.False(t, known)
	assert.True(t, state.Consistent())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, coord.WaitReady(ctx), context.DeadlineExceeded)

	listener(nil)
	require.NoError(t, coord.WaitReady(context.Background()))
	state = coord.State()
	authenticated, known := state.IsAuthenticated()
	assert.True(t, known)
	assert.False(t, authenticated)
	assert.Nil(t, state.User)
	assert.Equal(t, uint64(1), state.Generation)

	require.NoError(t, coord.Close())
	require.NoError(t, coord.Close())
	assert.Equal(t, 1, unsubscribed)
}

func TestSessionCoordinator_StartTwiceAndAfterClose(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.start(t)
	assert.ErrorIs(t, f.coord.Start(context.Background()), ErrCoordinatorStarted)
	assert.Equal(t, 1, f.backend.ListenerCount())

	require.NoError(t, f.coord.Close())
	assert.Equal(t, 0, f.backend.ListenerCount())
	assert.Equal(t, 1, f.backend.Unsubscribes())
	assert.ErrorIs(t, f.coord.Start(context.Background()), ErrCoordinatorClosed)
}

func TestSessionCoordinator_SubscribeFailure(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.backend.SubscribeErr = errors.New("backend down")
	err := f.coord.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")

	f.backend.SubscribeErr = nil
	require.NoError(t, f.coord.Start(context.Background()), "start may be retried after a failed subscribe")
}

func TestSessionCoordinator_LoginEnrichesUser(t *testing.T) {
	f := newCoordinatorFixture(t)
	require.NoError(t, f.docs.Put(domainauth.ProfileCollection, "user-1",
		domainauth.Profile{UserID: "user-1", Username: "alice", ProfileURL: "ref123"}))
	f.start(t)

	res := f.coord.Login(context.Background(), "alice@example.com", "pw")
	require.True(t, res.Success)
	assert.Equal(t, domainauth.ErrorKindNone, res.Kind)

	assert.Equal(t, domainauth.StatusAuthenticated, f.coord.Status())
	require.Eventually(t, func() bool {
		u := f.coord.CurrentUser()
		return u != nil && u.Enriched
	}, time.Second, 5*time.Millisecond)

	u := f.coord.CurrentUser()
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "ref123", u.ProfileURL)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, []string{metrics.ResultSuccess}, f.recorder.enrichmentResults())
}

func TestSessionCoordinator_MissingProfileKeepsMinimalUser(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.start(t)

	require.True(t, f.coord.Login(context.Background(), "a@example.com", "pw").Success)
	require.Eventually(t, func() bool {
		return len(f.recorder.enrichmentResults()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{metrics.ResultMissing}, f.recorder.enrichmentResults())
	u := f.coord.CurrentUser()
	require.NotNil(t, u)
	assert.False(t, u.Enriched)
	assert.Equal(t, domainauth.StatusAuthenticated, f.coord.Status())
}

func TestSessionCoordinator_EnrichmentFailureDoesNotChangeStatus(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.docs.GetFunc = func(context.Context, string, string, any) (bool, error) {
		return false, errors.New("document store unavailable")
	}
	f.start(t)

	require.True(t, f.coord.Login(context.Background(), "a@example.com", "pw").Success)
	require.Eventually(t, func() bool {
		return len(f.recorder.enrichmentResults()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{metrics.ResultError}, f.recorder.enrichmentResults())
	assert.Equal(t, domainauth.StatusAuthenticated, f.coord.Status())
}

func TestSessionCoordinator_LoginFailuresAreClassified(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    domainauth.ErrorKind
		wantMsg string
	}{
		{"invalid email", domainauth.NewBackendError(domainauth.CodeInvalidEmail, "bad"), domainauth.ErrorKindInvalidEmail, domainauth.MessageInvalidEmail},
		{"wrong password", domainauth.NewBackendError(domainauth.CodeWrongPassword, "nope"), domainauth.ErrorKindInvalidCredentials, domainauth.MessageInvalidCredentials},
		{"throttled", domainauth.NewBackendError(domainauth.CodeTooManyRequests, "slow down"), domainauth.ErrorKindUnknown, "slow down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCoordinatorFixture(t)
			f.backend.SignInFunc = func(context.Context, string, string) (domainauth.Identity, error) {
				return domainauth.Identity{}, tt.err
			}
			f.start(t)

			res := f.coord.Login(context.Background(), "x", "y")
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Kind)
			assert.Equal(t, tt.wantMsg, res.Message)
			assert.ErrorIs(t, res.Err, tt.err)
			assert.Equal(t, domainauth.StatusUnauthenticated, f.coord.Status())

			require.Len(t, f.recorder.operations, 1)
			assert.Equal(t, metrics.ResultError, f.recorder.operations[0].Result)
			assert.Equal(t, string(tt.want), f.recorder.operations[0].ErrorKind)
		})
	}
}

func TestSessionCoordinator_BackendPanicBecomesResult(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.backend.SignInFunc = func(context.Context, string, string) (domainauth.Identity, error) {
		panic("unexpected nil")
	}
	f.start(t)

	var res domainauth.Result
	require.NotPanics(t, func() { res = f.coord.Login(context.Background(), "a@example.com", "pw") })
	assert.False(t, res.Success)
	assert.Equal(t, domainauth.ErrorKindUnknown, res.Kind)
	assert.Contains(t, res.Message, "panicked")
}

func TestSessionCoordinator_RegisterWritesProfile(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.start(t)

	res := f.coord.Register(context.Background(), RegisterInput{
		Email:      "alice@example.com",
		Password:   "hunter22",
		Username:   "alice",
		ProfileURL: "ref123",
	})
	require.True(t, res.Success)
	require.NotNil(t, res.User)
	assert.Equal(t, "new-user-1", res.User.UserID)

	var stored domainauth.Profile
	found, err := f.docs.GetDirect(domainauth.ProfileCollection, "new-user-1", &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domainauth.Profile{UserID: "new-user-1", Username: "alice", ProfileURL: "ref123"}, stored)

	u := f.coord.CurrentUser()
	require.NotNil(t, u)
	assert.True(t, u.Enriched)
	assert.Equal(t, "alice", u.Username)
}

func TestSessionCoordinator_RegisterMergesOwnWriteAcrossGenerations(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.docs.GetFunc = func(context.Context, string, string, any) (bool, error) { return false, nil }
	f.docs.SetFunc = func(_ context.Context, collection, key string, value any) error {
		// A repeated sign-in event for the same user advances the generation first.
		f.backend.Emit(&domainauth.Identity{UserID: key, Email: "alice@example.com"})
		return f.docs.Put(collection, key, value)
	}
	f.start(t)

	before := f.coord.State().Generation
	res := f.coord.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "hunter22", Username: "alice",
	})
	require.True(t, res.Success)
	assert.Greater(t, f.coord.State().Generation, before+1)

	u := f.coord.CurrentUser()
	require.NotNil(t, u)
	assert.True(t, u.Enriched)
	assert.Equal(t, "alice", u.Username)
}

func TestSessionCoordinator_RegisterEmailInUseWritesNothing(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.backend.SignUpFunc = func(context.Context, string, string) (domainauth.Identity, error) {
		return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeEmailAlreadyInUse, "taken")
	}
	f.start(t)

	res := f.coord.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw", Username: "alice"})
	assert.False(t, res.Success)
	assert.Equal(t, domainauth.ErrorKindEmailAlreadyInUse, res.Kind)
	assert.Equal(t, domainauth.MessageEmailAlreadyInUse, res.Message)
	assert.Nil(t, res.User)

	_, sets := f.docs.Counts()
	assert.Zero(t, sets)
}

func TestSessionCoordinator_RegisterRollsBackOnProfileWriteFailure(t *testing.T) {
	f := newCoordinatorFixture(t)
	writeErr := errors.New("quota exceeded")
	f.docs.SetFunc = func(context.Context, string, string, any) error { return writeErr }
	f.start(t)

	res := f.coord.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw", Username: "alice"})
	assert.False(t, res.Success)
	assert.Equal(t, domainauth.ErrorKindUnknown, res.Kind)
	assert.ErrorIs(t, res.Err, writeErr)
	assert.Equal(t, domainauth.MessageUnknown, res.Message)
	assert.NotContains(t, res.Message, "quota")
	assert.Nil(t, res.User)

	_, sets := f.docs.Counts()
	assert.Equal(t, defaultProfileWriteAttempts, sets)
	_, _, _, deletes := f.backend.Calls()
	assert.Equal(t, 1, deletes)
	assert.Equal(t, domainauth.StatusUnauthenticated, f.coord.Status())
}

func TestSessionCoordinator_RegisterRetriesTransientWriteFailure(t *testing.T) {
	f := newCoordinatorFixture(t)
	failures := 1
	f.docs.SetFunc = func(_ context.Context, collection, key string, value any) error {
		if failures > 0 {
			failures--
			return errors.New("transient")
		}
		return f.docs.Put(collection, key, value)
	}
	f.start(t)

	res := f.coord.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw", Username: "alice"})
	require.True(t, res.Success)
	_, sets := f.docs.Counts()
	assert.Equal(t, 2, sets)
	_, _, _, deletes := f.backend.Calls()
	assert.Zero(t, deletes)
}

func TestSessionCoordinator_RegisterRollbackFailureIsReported(t *testing.T) {
	f := newCoordinatorFixture(t)
	writeErr := errors.New("quota exceeded")
	rbErr := errors.New("delete refused")
	f.docs.SetFunc = func(context.Context, string, string, any) error { return writeErr }
	f.backend.DeleteUserFunc = func(context.Context, string) error { return rbErr }
	f.start(t)

	res := f.coord.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, writeErr)
	assert.ErrorIs(t, res.Err, rbErr)
}

func TestSessionCoordinator_LogoutFlows(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.start(t)

	res := f.coord.Logout(context.Background())
	assert.True(t, res.Success, "logout while signed out is a no-op")
	assert.Equal(t, domainauth.StatusUnauthenticated, f.coord.Status())

	require.True(t, f.coord.Login(context.Background(), "a@example.com", "pw").Success)
	assert.Equal(t, domainauth.StatusAuthenticated, f.coord.Status())

	res = f.coord.Logout(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, domainauth.StatusUnauthenticated, f.coord.Status())
	assert.Nil(t, f.coord.CurrentUser())
}

func TestSessionCoordinator_LogoutFailureKeepsRawError(t *testing.T) {
	f := newCoordinatorFixture(t)
	boom := errors.New("network unreachable")
	f.backend.SignOutFunc = func(context.Context) error { return boom }
	f.start(t)

	res := f.coord.Logout(context.Background())
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, domainauth.MessageUnknown, res.Message)
}

// gatedDocuments blocks profile reads for selected users until released.
type gatedDocuments struct {
	*fakes.MemoryDocumentStore
	gates map[string]chan struct{}
}

func newGatedDocuments(users ...string) *gatedDocuments {
	g := &gatedDocuments{MemoryDocumentStore: fakes.NewMemoryDocumentStore(), gates: map[string]chan struct{}{}}
	for _, u := range users {
		g.gates[u] = make(chan struct{})
	}
	g.GetFunc = func(ctx context.Context, collection, key string, dst any) (bool, error) {
		if gate, ok := g.gates[key]; ok {
			select {
			case <-gate:
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		return g.GetDirect(collection, key, dst)
	}
	return g
}

func TestSessionCoordinator_StaleEnrichmentAfterLogoutIsDiscarded(t *testing.T) {
	docs := newGatedDocuments("user-1")
	require.NoError(t, docs.Put(domainauth.ProfileCollection, "user-1", domainauth.Profile{UserID: "user-1", Username: "alice"}))
	backend := fakes.NewFakeIdentityBackend()
	recorder := &recordingRecorder{}
	coord, err := NewSessionCoordinator(SessionCoordinatorOptions{Backend: backend, Documents: docs, Recorder: recorder})
	require.NoError(t, err)
	defer coord.Close()
	require.NoError(t, coord.Start(context.Background()))

	require.True(t, coord.Login(context.Background(), "alice@example.com", "pw").Success)
	require.True(t, coord.Logout(context.Background()).Success)

	close(docs.gates["user-1"])
	require.Eventually(t, func() bool {
		return len(recorder.enrichmentResults()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{metrics.ResultStale}, recorder.enrichmentResults())
	state := coord.State()
	assert.Equal(t, domainauth.StatusUnauthenticated, state.Status)
	assert.Nil(t, state.User)
}

func TestSessionCoordinator_StaleEnrichmentForPreviousUserIsDiscarded(t *testing.T) {
	docs := newGatedDocuments("user-a")
	require.NoError(t, docs.Put(domainauth.ProfileCollection, "user-a", domainauth.Profile{UserID: "user-a", Username: "alice"}))
	require.NoError(t, docs.Put(domainauth.ProfileCollection, "user-b", domainauth.Profile{UserID: "user-b", Username: "bob"}))

	backend := fakes.NewFakeIdentityBackend()
	backend.SignInFunc = func(_ context.Context, email, _ string) (domainauth.Identity, error) {
		if email == "alice@example.com" {
			return domainauth.Identity{UserID: "user-a", Email: email}, nil
		}
		return domainauth.Identity{UserID: "user-b", Email: email}, nil
	}
	recorder := &recordingRecorder{}
	coord, err := NewSessionCoordinator(SessionCoordinatorOptions{Backend: backend, Documents: docs, Recorder: recorder})
	require.NoError(t, err)
	defer coord.Close()
	require.NoError(t, coord.Start(context.Background()))

	require.True(t, coord.Login(context.Background(), "alice@example.com", "pw").Success)
	require.True(t, coord.Login(context.Background(), "bob@example.com", "pw").Success)
	require.Eventually(t, func() bool {
		u := coord.CurrentUser()
		return u != nil && u.Enriched
	}, time.Second, 5*time.Millisecond)

	close(docs.gates["user-a"])
	require.Eventually(t, func() bool {
		return len(recorder.enrichmentResults()) == 2
	}, time.Second, 5*time.Millisecond)

	u := coord.CurrentUser()
	require.NotNil(t, u)
	assert.Equal(t, "user-b", u.UserID)
	assert.Equal(t, "bob", u.Username)
	assert.ElementsMatch(t, []string{metrics.ResultSuccess, metrics.ResultStale}, recorder.enrichmentResults())
}

func TestSessionCoordinator_CloseCancelsInFlightEnrichment(t *testing.T) {
	docs := newGatedDocuments("user-1")
	backend := fakes.NewFakeIdentityBackend()
	coord, err := NewSessionCoordinator(SessionCoordinatorOptions{Backend: backend, Documents: docs})
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))
	require.True(t, coord.Login(context.Background(), "a@example.com", "pw").Success)

	done := make(chan struct{})
	go func() {
		_ = coord.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the blocked enrichment")
	}

	backend.Emit(&domainauth.Identity{UserID: "late"})
	assert.Equal(t, domainauth.StatusAuthenticated, coord.Status())
	assert.Equal(t, "user-1", coord.CurrentUser().UserID, "events after Close are ignored")
}

func TestSessionCoordinator_Watch(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := f.coord.Watch(ctx)
	first := <-ch
	assert.Equal(t, domainauth.StatusUnknown, first.Status)

	f.start(t)
	second := <-ch
	assert.Equal(t, domainauth.StatusUnauthenticated, second.Status)

	f.backend.ManualEvents = true
	f.backend.Emit(&domainauth.Identity{UserID: "u1"})
	f.backend.Emit(nil)
	f.backend.Emit(&domainauth.Identity{UserID: "u2"})
	latest := <-ch
	assert.Equal(t, uint64(4), latest.Generation, "slow watchers only see the newest state")
	require.NotNil(t, latest.User)
	assert.Equal(t, "u2", latest.User.UserID)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSessionCoordinator_WatchClosedOnClose(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.start(t)
	ch := f.coord.Watch(context.Background())
	<-ch

	require.NoError(t, f.coord.Close())
	_, ok := <-ch
	assert.False(t, ok)

	after := f.coord.Watch(context.Background())
	_, ok = <-after
	assert.False(t, ok)
}

func TestSessionCoordinator_StateIsConsistentUnderConcurrentEvents(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.backend.ManualEvents = true
	f.start(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				if (i+j)%2 == 0 {
					f.backend.Emit(&domainauth.Identity{UserID: "u"})
				} else {
					f.backend.Emit(nil)
				}
				s := f.coord.State()
				assert.True(t, s.Consistent())
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, uint64(1+8*50), f.coord.State().Generation)
}
