package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

var (
	// ErrNotConnected is returned by operations on a connection that has not
	// been connected yet, or was closed.
	ErrNotConnected = errors.New("not connected")
	// ErrShellClosed is returned by Send on a closed Shell.
	ErrShellClosed = errors.New("shell is closed")
	// ErrSessionActive is returned when a Shell or FileTailer is opened on a
	// connection that already has one open.
	ErrSessionActive = errors.New("connection already has an open shell or tailer")

	errIsDirectory = errors.New("is a directory")
)

// AuthenticationError reports that every configured credential was rejected.
type AuthenticationError struct {
	User string
	Addr string
	Err  error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s@%s: %v", e.User, e.Addr, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a handshake, command or transfer overran its
// deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

// Timeout reports true, matching net.Error.
func (e *TimeoutError) Timeout() bool {
	return true
}

// Is makes errors.Is(err, context.DeadlineExceeded) hold for timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// TransportError reports path errors, disconnects and remote protocol
// failures.
type TransportError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a timeout of any kind.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ctxError converts the error of an aborted operation into a TimeoutError when
// its context hit the deadline. Plain cancellation is returned as is.
func ctxError(ctx context.Context, op string, start time.Time) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Op: op, After: elapsed(start)}
	}
	return fmt.Errorf("%s: %w", op, ctx.Err())
}

func elapsed(start time.Time) time.Duration {
	return time.Since(start).Round(time.Millisecond)
}
