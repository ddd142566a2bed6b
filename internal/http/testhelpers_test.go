package httpx

import (
	"context"
	"sync"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/service"
)

// fakeSession is a SessionService whose state is set by tests.
type fakeSession struct {
	mu       sync.Mutex
	state    domainauth.State
	watchers []chan domainauth.State

	loginResult    domainauth.Result
	registerResult domainauth.Result
	logoutResult   domainauth.Result
	lastLogin      [2]string
	lastRegister   service.RegisterInput
}

func (f *fakeSession) State() domainauth.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func (f *fakeSession) Status() domainauth.Status { return f.State().Status }

func (f *fakeSession) Login(_ context.Context, email, password string) domainauth.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLogin = [2]string{email, password}
	return f.loginResult
}

func (f *fakeSession) Register(_ context.Context, in service.RegisterInput) domainauth.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRegister = in
	return f.registerResult
}

func (f *fakeSession) Logout(context.Context) domainauth.Result { return f.logoutResult }

func (f *fakeSession) Watch(ctx context.Context) <-chan domainauth.State {
	ch := make(chan domainauth.State, 8)
	f.mu.Lock()
	ch <- f.state.Clone()
	f.watchers = append(f.watchers, ch)
	f.mu.Unlock()
	return ch
}

// set replaces the state and notifies watchers.
func (f *fakeSession) set(s domainauth.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	for _, ch := range f.watchers {
		ch <- s.Clone()
	}
}

// closeWatchers ends every stream.
func (f *fakeSession) closeWatchers() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.watchers {
		close(ch)
	}
	f.watchers = nil
}

func (f *fakeSession) watcherCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

func authenticatedState(userID string) domainauth.State {
	return domainauth.State{
		Status:     domainauth.StatusAuthenticated,
		User:       &domainauth.SessionUser{UserID: userID, Email: userID + "@example.com"},
		Generation: 1,
	}
}
