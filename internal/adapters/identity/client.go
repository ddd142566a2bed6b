package identity

// Package identity implements the reference identity backend: e-mail/password
// accounts, a persisted credential, and ordered identity-change notifications.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/ports"
)

// DefaultCredentialKey is the credential slot used when none is configured.
const DefaultCredentialKey = "current"

var _ ports.IdentityBackend = (*Client)(nil)

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Authenticator ports.Authenticator   // required
	Credentials   ports.CredentialStore // optional; enables restore on Start
	Tokens        *TokenIssuer          // required when Credentials is set
	Throttle      *Throttle             // optional
	Logger        *slog.Logger          // optional
	CredentialKey string                // default "current"
}

// Client is an IdentityBackend that keeps a single current identity and notifies
// subscribers of every change, in order, from one dispatcher goroutine.
type Client struct {
	authn    ports.Authenticator
	creds    ports.CredentialStore
	tokens   *TokenIssuer
	throttle *Throttle
	logger   *slog.Logger
	key      string

	// opMu serializes state-changing operations so event order matches state order.
	opMu sync.Mutex

	mu        sync.Mutex
	current   *domainauth.Identity
	listeners map[uint64]ports.IdentityListener
	nextID    uint64
	queue     []event
	started   bool
	closed    bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

type event struct {
	id       string
	identity *domainauth.Identity
	// target is the listener that asked for a replay; zero broadcasts.
	target uint64
	replay bool
}

// NewClient constructs a Client. Call Start before expecting events.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.Credentials != nil && opts.Tokens == nil {
		return nil, errors.New("token issuer is required when credentials are persisted")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	key := opts.CredentialKey
	if key == "" {
		key = DefaultCredentialKey
	}
	return &Client{
		authn:     opts.Authenticator,
		creds:     opts.Credentials,
		tokens:    opts.Tokens,
		throttle:  opts.Throttle,
		logger:    logger.With("component", "identity_client"),
		key:       key,
		listeners: make(map[uint64]ports.IdentityListener),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start restores any persisted credential and begins delivering events.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("identity client already started")
	}
	if c.closed {
		c.mu.Unlock()
		return errors.New("identity client is closed")
	}
	c.started = true
	c.mu.Unlock()

	if restored := c.restore(ctx); restored != nil {
		c.mu.Lock()
		c.current = restored
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "restored persisted credential", "user_id", restored.UserID)
	}

	c.wg.Add(1)
	go c.dispatch()
	c.signal()
	return nil
}

// Close stops event delivery. Pending events are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.queue = nil
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()
	return nil
}

// Subscribe registers listener. The current identity is delivered to it first,
// followed by every subsequent change.
func (c *Client) Subscribe(listener ports.IdentityListener) (ports.Unsubscribe, error) {
	if listener == nil {
		return nil, errors.New("listener is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("identity client is closed")
	}
	c.nextID++
	id := c.nextID
	c.listeners[id] = listener
	c.enqueueLocked(event{id: NewEventID(), target: id, replay: true})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}, nil
}

// SignIn authenticates email/password and makes the identity current.
func (c *Client) SignIn(ctx context.Context, email, password string) (domainauth.Identity, error) {
	return c.signWith(ctx, "sign_in", email, password, c.authn.Authenticate)
}

// SignUp creates an account for email/password and makes it current.
func (c *Client) SignUp(ctx context.Context, email, password string) (domainauth.Identity, error) {
	return c.signWith(ctx, "sign_up", email, password, c.authn.Register)
}

type credentialFunc func(ctx context.Context, email, password string) (domainauth.Identity, error)

func (c *Client) signWith(
	ctx context.Context,
	action, email, password string,
	fn credentialFunc,
) (domainauth.Identity, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return domainauth.Identity{}, err
	}
	if !c.throttle.Allow(action + ":" + normalized) {
		return domainauth.Identity{}, domainauth.NewBackendError(domainauth.CodeTooManyRequests,
			"too many attempts, try again later")
	}

	id, err := fn(ctx, normalized, password)
	if err != nil {
		return domainauth.Identity{}, err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	c.persist(ctx, id)
	c.setCurrent(&id)
	c.logger.InfoContext(ctx, "identity changed", "action", action, "user_id", id.UserID)
	return id, nil
}

// SignOut clears the current identity. It is a no-op when already signed out.
func (c *Client) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.signOutLocked(ctx)
}

// DeleteUser removes the account for userID. The current identity is signed
// out only when it is that account.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return domainauth.NewBackendError(domainauth.CodeUserNotFound, "user id is required")
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.authn.Delete(ctx, userID); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "deleted user", "user_id", userID)

	c.mu.Lock()
	isCurrent := c.current != nil && c.current.UserID == userID
	c.mu.Unlock()
	if !isCurrent {
		return nil
	}
	return c.signOutLocked(ctx)
}

// Current returns a copy of the current identity, or nil when signed out.
func (c *Client) Current() *domainauth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyIdentity(c.current)
}

func (c *Client) signOutLocked(ctx context.Context) error {
	c.mu.Lock()
	signedIn := c.current != nil
	c.mu.Unlock()
	if !signedIn {
		return nil
	}
	if c.creds != nil {
		if err := c.creds.Delete(ctx, c.key); err != nil && !errors.Is(err, ports.ErrCredentialNotFound) {
			return domainauth.WrapBackendError(domainauth.CodeInternal, "clear credential failed", err)
		}
	}
	c.setCurrent(nil)
	c.logger.InfoContext(ctx, "identity changed", "action", "sign_out")
	return nil
}

func (c *Client) setCurrent(id *domainauth.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = copyIdentity(id)
	c.enqueueLocked(event{id: NewEventID(), identity: copyIdentity(id)})
}

func (c *Client) enqueueLocked(ev event) {
	if c.closed {
		return
	}
	c.queue = append(c.queue, ev)
	if c.started {
		c.signal()
	}
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			ev, ok := c.next()
			if !ok {
				break
			}
			c.deliver(ev)
		}
	}
}

func (c *Client) next() (event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(c.queue) == 0 {
		return event{}, false
	}
	ev := c.queue[0]
	c.queue[0] = event{}
	c.queue = c.queue[1:]
	return ev, true
}

func (c *Client) deliver(ev event) {
	c.mu.Lock()
	var targets []ports.IdentityListener
	identity := ev.identity
	if ev.replay {
		if l, ok := c.listeners[ev.target]; ok {
			targets = append(targets, l)
		}
		identity = c.current
	} else {
		for _, l := range c.listeners {
			targets = append(targets, l)
		}
	}
	c.mu.Unlock()

	for _, l := range targets {
		c.invoke(ev.id, l, copyIdentity(identity))
	}
}

func (c *Client) invoke(eventID string, l ports.IdentityListener, id *domainauth.Identity) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("identity listener panicked", "event_id", eventID, "panic", r)
		}
	}()
	l(id)
}

func (c *Client) persist(ctx context.Context, id domainauth.Identity) {
	if c.creds == nil {
		return
	}
	token, expiresAt, err := c.tokens.Issue(id)
	if err != nil {
		c.logger.WarnContext(ctx, "issue credential failed", "user_id", id.UserID, "error", err)
		return
	}
	cred := ports.Credential{Key: c.key, UserID: id.UserID, Token: token, ExpiresAt: expiresAt}
	if err := c.creds.Save(ctx, cred); err != nil {
		c.logger.WarnContext(ctx, "persist credential failed", "user_id", id.UserID, "error", err)
	}
}

func (c *Client) restore(ctx context.Context) *domainauth.Identity {
	if c.creds == nil {
		return nil
	}
	cred, err := c.creds.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, ports.ErrCredentialNotFound) {
			c.logger.WarnContext(ctx, "load credential failed", "error", err)
		}
		return nil
	}
	id, err := c.tokens.Verify(cred.Token)
	if err == nil && id.UserID != cred.UserID {
		err = fmt.Errorf("credential subject %q does not match %q", id.UserID, cred.UserID)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "discarding persisted credential", "error", err)
		if delErr := c.creds.Delete(ctx, c.key); delErr != nil && !errors.Is(delErr, ports.ErrCredentialNotFound) {
			c.logger.WarnContext(ctx, "delete stale credential failed", "error", delErr)
		}
		return nil
	}
	return &id
}

func copyIdentity(id *domainauth.Identity) *domainauth.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}

