package data

import (
	"errors"
	"fmt"

	apperrors "github.com/parlorchat/parlor/internal/errors"
	"github.com/parlorchat/parlor/internal/ports"
)

// Shared sentinel errors for data-layer repositories.
var (
	ErrDocumentKeyRequired = errors.New("collection and key are required")
	ErrUserIDRequired      = errors.New("user_id is required")
)

// mapAccountErr translates database failures into the account port sentinels.
// A malformed UUID can never match a row, so it is reported as not found.
func mapAccountErr(op string, err error) error {
	if err == nil {
		return nil
	}
	mapped := apperrors.MapDBError(err)
	switch {
	case apperrors.IsConflict(mapped):
		return ports.ErrAccountExists
	case apperrors.IsNotFound(mapped), apperrors.IsValidation(mapped):
		return ports.ErrAccountNotFound
	}
	return fmt.Errorf("%s: %w", op, mapped)
}
