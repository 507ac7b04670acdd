package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/security"
)

// Result holds the outcome of a command, transfer or shell session on one
// host. Status -1 marks an outcome synthesized locally for a timeout or
// transport failure.
type Result struct {
	Stdout string
	Stderr string
	Status int
}

// SentinelResult returns a synthesized failure carrying msg as stderr.
func SentinelResult(msg string) *Result {
	return &Result{Stderr: msg, Status: constants.SentinelStatus}
}

// OKResult returns the result reported by a successful transfer.
func OKResult() *Result {
	return &Result{Stdout: constants.TransferOKMarker}
}

// Succeeded reports whether the status is zero.
func (r *Result) Succeeded() bool {
	return r.Status == 0
}

func (r *Result) String() string {
	return fmt.Sprintf("stdout: %q\nstderr: %q\nstatus: %d", r.Stdout, r.Stderr, r.Status)
}

// execute runs command in its own session. When ctx ends first the remote
// channel is torn down and the sentinel result is returned with the error.
// The deadline covers opening the channel too, so a host that stops
// answering channel requests cannot hold the caller.
func (c *client) execute(ctx context.Context, command string) (*Result, error) {
	sc, err := c.sshClient()
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("command", security.SanitizeCommandForLog(command)).Msg("executing")

	start := time.Now()
	result, err := bounded(ctx, "command", func() (*Result, error) {
		return c.run(ctx, sc, command)
	})
	if err != nil && ctx.Err() != nil {
		c.log.Warn().Err(err).Msg("command aborted")
		return SentinelResult(err.Error()), err
	}
	if err != nil {
		return result, err
	}

	c.log.Debug().Int("status", result.Status).Dur("took", elapsed(start)).Msg("command finished")
	return result, nil
}

// run drives one exec session. Once ctx ends the command is killed and
// ctx.Err() is returned.
func (c *client) run(ctx context.Context, sc *ssh.Client, command string) (*Result, error) {
	session, err := sc.NewSession()
	if err != nil {
		return nil, &TransportError{Op: "failed to create session", Path: c.addr, Err: err}
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
	})

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		if !stop() {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "failed to execute command", Path: c.addr, Err: err}
	}

	err = session.Wait()
	if !stop() {
		return nil, ctx.Err()
	}

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.Status = exitErr.ExitStatus()
		} else {
			result.Status = constants.SentinelStatus
			return result, &TransportError{Op: "failed to execute command", Path: c.addr, Err: err}
		}
	}
	return result, nil
}
