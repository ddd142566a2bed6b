package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/parlorchat/parlor/internal/data/pgxutil"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	apperrors "github.com/parlorchat/parlor/internal/errors"
)

// PurgeResult reports what PurgeUser removed.
type PurgeResult struct {
	AccountDeleted bool
	ProfileDeleted bool
}

// PurgeUser removes a user's account row and profile document in one transaction.
// Missing rows are not an error; the result reports what existed.
func PurgeUser(ctx context.Context, db *sql.DB, userID string) (PurgeResult, error) {
	var out PurgeResult
	if strings.TrimSpace(userID) == "" {
		return out, ErrUserIDRequired
	}
	err := pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			n, err := execCount(ctx, tx, `DELETE FROM documents WHERE collection = $1 AND key = $2`,
				domainauth.ProfileCollection, userID)
			if err != nil {
				return fmt.Errorf("delete profile: %w", err)
			}
			out.ProfileDeleted = n > 0

			n, err = execCount(ctx, tx, `DELETE FROM accounts WHERE id::text = $1`, userID)
			if err != nil {
				return fmt.Errorf("delete account: %w", err)
			}
			out.AccountDeleted = n > 0
			return nil
		},
	})
	if err != nil {
		return PurgeResult{}, apperrors.MapDBError(err)
	}
	return out, nil
}

func execCount(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
