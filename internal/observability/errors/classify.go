package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
)

// Classify returns a normalized error class suitable for tagging metrics/logs.
// Known classes are checked first (cancellation, timeouts, identity backend codes,
// Postgres SQLSTATEs); anything else is named after its innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	if code := domainauth.CodeOf(err); code != "" {
		return normalize(string(code))
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return "postgres_" + pgErr.Code
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := normalize(t.String())
	if name == "" {
		return "unknown"
	}
	return name
}

func normalize(s string) string {
	r := strings.NewReplacer("*", "", ".", "_", "/", "_", "-", "_")
	return strings.ToLower(r.Replace(s))
}
