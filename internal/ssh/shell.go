package ssh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// Shell is an interactive login shell on one host. Output is accumulated as it
// arrives; Close ends the session and records the exit status.
type Shell struct {
	session *ssh.Session
	stdin   io.WriteCloser
	pty     bool
	release func()

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	status int
	closed bool

	done    chan struct{}
	waitErr error
}

// transcript appends session output to one of the shell buffers.
type transcript struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (t transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

// startShell starts a shell session. Under a PTY stdout and stderr share one
// transcript.
func startShell(sc *ssh.Client, pty bool, release func()) (*Shell, error) {
	session, err := sc.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "failed to create session", Err: err}
	}

	s := &Shell{
		session: session,
		pty:     pty,
		release: release,
		status:  constants.SentinelStatus,
		done:    make(chan struct{}),
	}

	if pty {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty(constants.TerminalType, constants.TerminalRows, constants.TerminalCols, modes); err != nil {
			_ = session.Close()
			return nil, &TransportError{Op: "failed to request pty", Err: err}
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return nil, &TransportError{Op: "failed to get stdin pipe", Err: err}
	}
	s.stdin = stdin
	session.Stdout = transcript{mu: &s.mu, buf: &s.stdout}
	if pty {
		session.Stderr = transcript{mu: &s.mu, buf: &s.stdout}
	} else {
		session.Stderr = transcript{mu: &s.mu, buf: &s.stderr}
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return nil, &TransportError{Op: "failed to start shell", Err: err}
	}

	go func() {
		s.waitErr = session.Wait()
		close(s.done)
	}()
	return s, nil
}

// Send writes text to the shell, appending a newline unless text already
// ends with one.
func (s *Shell) Send(text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return s.SendRaw(text)
}

// SendRaw writes text to the shell verbatim.
func (s *Shell) SendRaw(text string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrShellClosed
	}
	if _, err := io.WriteString(s.stdin, text); err != nil {
		return &TransportError{Op: "shell send", Err: err}
	}
	return nil
}

// Result returns a snapshot of the transcript. Status stays -1 until the
// shell is closed and the remote side reported an exit status.
func (s *Shell) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Result{
		Stdout: s.stdout.String(),
		Stderr: s.stderr.String(),
		Status: s.status,
	}
}

// Closed reports whether Close was called.
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close signals end of input and waits for the remote exit status. When ctx
// ends first the session is torn down and the status is -1. Closing twice is
// a no-op.
func (s *Shell) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	defer s.release()

	if s.pty {
		// A terminal does not forward end of input to the shell.
		_, _ = io.WriteString(s.stdin, "exit\n")
	}
	_ = s.stdin.Close()

	status := constants.SentinelStatus
	var err error
	select {
	case <-s.done:
		status = exitStatus(s.waitErr)
	case <-ctx.Done():
		_ = s.session.Close()
		<-s.done
		err = ctx.Err()
	}
	_ = s.session.Close()

	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: "shell close"}
	}
	return err
}

func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return constants.SentinelStatus
}
