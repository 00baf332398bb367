package core

import (
	"errors"
	"fmt"
)

// ErrConnectFailed marks a worker that could not obtain its connection.
var ErrConnectFailed = errors.New("connect failed")

// ConnectError reports which worker failed to connect and why.
type ConnectError struct {
	WorkerID int
	Err      error
}

func (e *ConnectError) Error() string {
	if e.WorkerID > 0 {
		return fmt.Sprintf("worker %d: %v: %v", e.WorkerID, ErrConnectFailed, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrConnectFailed, e.Err)
}

func (e *ConnectError) Unwrap() []error { return []error{ErrConnectFailed, e.Err} }

// Error kinds used to break down failed attempts.
const (
	KindConnection = "connection"
	KindSyntax     = "syntax"
	KindPermission = "permission"
	KindCanceled   = "canceled"
	KindTemplate   = "template"
	KindPanic      = "panic"
	KindOther      = "other"
)

// QueryError is a failed attempt tagged with its kind.
type QueryError struct {
	Kind string
	Err  error
}

func (e *QueryError) Error() string { return e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// Broken reports whether the connection that produced e should be recycled.
func (e *QueryError) Broken() bool { return e.Kind == KindConnection }

// ErrorKind returns the kind carried by err, or KindOther.
func ErrorKind(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) && qe.Kind != "" {
		return qe.Kind
	}
	return KindOther
}
