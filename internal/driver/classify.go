package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pgbench/internal/core"
)

// Classify maps a driver error to one of the core.Kind* values.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.KindCanceled
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if kind := classifySQLite(liteErr); kind != "" {
			return kind
		}
	}

	if errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.KindConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return core.KindConnection
	}

	return classifyMessage(err.Error())
}

// classifyPostgres uses SQLSTATE codes.
func classifyPostgres(e *pq.Error) string {
	switch e.Code {
	case "57014": // query_canceled
		return core.KindCanceled
	case "42501": // insufficient_privilege
		return core.KindPermission
	case "57P01", "57P02", "57P03": // shutdown, crash, cannot connect now
		return core.KindConnection
	}
	switch e.Code.Class() {
	case "08":
		return core.KindConnection
	case "28":
		return core.KindPermission
	case "42":
		return core.KindSyntax
	}
	return core.KindOther
}

func classifySQLite(e *sqlite.Error) string {
	switch e.Code() & 0xff {
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return core.KindPermission
	case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
		return core.KindConnection
	case sqlite3.SQLITE_INTERRUPT:
		return core.KindCanceled
	}
	return ""
}

// classifyMessage falls back to matching the error text.
func classifyMessage(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "no such table"),
		strings.Contains(msg, "no such column"),
		strings.Contains(msg, "does not exist"):
		return core.KindSyntax
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "authentication failed"):
		return core.KindPermission
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "i/o timeout"):
		return core.KindConnection
	case strings.Contains(msg, "canceling statement"),
		strings.Contains(msg, "interrupted"):
		return core.KindCanceled
	}
	return core.KindOther
}
