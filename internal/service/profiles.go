package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/ports"
)

// ErrUserIDRequired is returned when a profile operation has no user identifier.
var ErrUserIDRequired = errors.New("user ID is required")

// ProfileDirectory provides typed access to profile documents.
type ProfileDirectory struct {
	store ports.DocumentStore
}

// NewProfileDirectory constructs a ProfileDirectory over store.
func NewProfileDirectory(store ports.DocumentStore) *ProfileDirectory {
	return &ProfileDirectory{store: store}
}

// Get fetches the profile for userID and reports whether one exists.
func (d *ProfileDirectory) Get(ctx context.Context, userID string) (domainauth.Profile, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return domainauth.Profile{}, false, ErrUserIDRequired
	}
	var p domainauth.Profile
	found, err := d.store.Get(ctx, domainauth.ProfileCollection, userID, &p)
	if err != nil {
		return domainauth.Profile{}, false, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if !found {
		return domainauth.Profile{}, false, nil
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	return p, true, nil
}

// Put creates or replaces the profile keyed by p.UserID.
func (d *ProfileDirectory) Put(ctx context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrUserIDRequired
	}
	if err := d.store.Set(ctx, domainauth.ProfileCollection, p.UserID, p); err != nil {
		return fmt.Errorf("put profile %s: %w", p.UserID, err)
	}
	return nil
}

// Delete removes the profile for userID. Missing profiles are not an error.
func (d *ProfileDirectory) Delete(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}
	if err := d.store.Delete(ctx, domainauth.ProfileCollection, userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}
