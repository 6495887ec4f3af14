package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsTransient reports whether err leaves the transaction uncommitted and the
// whole operation safe to retry: timeouts, cancellation, dropped connections,
// serialization failures and deadlocks.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 40: transaction rollback, class 08: connection exception.
		if strings.HasPrefix(pgErr.Code, "40") || strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "57014", "57P01", "57P02", "57P03", "55P03":
			return true
		}
		return false
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
