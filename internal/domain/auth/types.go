package auth

// Package auth contains domain-level types for identities and the session state
// derived from them. It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"time"
)

// ProfileCollection is the document collection holding profile records.
const ProfileCollection = "users"

// Identity is the minimal signed-in principal reported by the identity backend.
// Adapters map provider-specific records into this shape.
type Identity struct {
	UserID        string    `json:"uid"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// Profile is the persisted profile document keyed by user identifier.
// UserID is denormalized into the document body.
type Profile struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

// SessionUser is the in-memory view of the signed-in user, enriched with profile fields.
type SessionUser struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Username      string `json:"username,omitempty"`
	ProfileURL    string `json:"profileUrl,omitempty"`
	// Enriched is true once a profile document has been merged.
	Enriched bool `json:"enriched"`
}

// NewSessionUser builds an un-enriched session user from a backend identity.
func NewSessionUser(id Identity) SessionUser {
	return SessionUser{
		UserID:        id.UserID,
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
	}
}

// WithProfile returns a copy of u with profile fields merged in.
func (u SessionUser) WithProfile(p Profile) SessionUser {
	u.Username = p.Username
	u.ProfileURL = p.ProfileURL
	if p.UserID != "" {
		u.UserID = p.UserID
	}
	u.Enriched = true
	return u
}

// Status is the tri-state authentication flag.
type Status int

const (
	// StatusUnknown means no identity event has been observed yet.
	StatusUnknown Status = iota
	// StatusAuthenticated means an identity is signed in.
	StatusAuthenticated
	// StatusUnauthenticated means the backend reported no identity.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Known reports whether the first identity event has been observed.
func (s Status) Known() bool { return s == StatusAuthenticated || s == StatusUnauthenticated }

// State is a snapshot of the session coordinator.
// User is non-nil iff Status is StatusAuthenticated.
type State struct {
	Status Status       `json:"status"`
	User   *SessionUser `json:"user"`
	// Generation counts identity events applied; zero while Status is unknown.
	Generation uint64 `json:"generation"`
}

// IsAuthenticated returns the authentication flag and whether it is known yet.
func (s State) IsAuthenticated() (authenticated, known bool) {
	return s.Status == StatusAuthenticated, s.Status.Known()
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s State) Clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Consistent reports whether the state honours the status/user invariant.
func (s State) Consistent() bool {
	switch s.Status {
	case StatusUnknown:
		return s.User == nil && s.Generation == 0
	case StatusAuthenticated:
		return s.User != nil
	case StatusUnauthenticated:
		return s.User == nil
	default:
		return false
	}
}
