package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "authentication",
			err:  &AuthenticationError{User: "root", Addr: "h:22", Err: errors.New("denied")},
			want: "authentication failed for root@h:22: denied",
		},
		{
			name: "timeout with duration",
			err:  &TimeoutError{Op: "command", After: 2 * time.Second},
			want: "command timed out after 2s",
		},
		{
			name: "timeout without duration",
			err:  &TimeoutError{Op: "shell close"},
			want: "shell close timed out",
		},
		{
			name: "transport with path",
			err:  &TransportError{Op: "sftp open", Path: "/x", Err: io.EOF},
			want: "sftp open /x: EOF",
		},
		{
			name: "transport without path",
			err:  &TransportError{Op: "shell send", Err: io.EOF},
			want: "shell send: EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout error", &TimeoutError{Op: "x"}, true},
		{"wrapped timeout", fmt.Errorf("host: %w", &TimeoutError{Op: "x"}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"transport", &TransportError{Op: "x", Err: io.EOF}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("op: %w", &TransportError{Op: "x", Err: io.ErrUnexpectedEOF})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("TransportError should unwrap to its cause")
	}

	var te *TimeoutError
	if !errors.As(&TimeoutError{Op: "x"}, &te) || !te.Timeout() {
		t.Error("TimeoutError should report Timeout()")
	}
}
