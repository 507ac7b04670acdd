package ssh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// client is the context-driven core shared by Connection and AsyncConnection.
type client struct {
	host string
	addr string
	opts Options
	log  zerolog.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	sftp   *sftp.Client
	active bool
}

func newClient(host string, opts ...Option) *client {
	o := NewOptions(opts...)
	h, port := constants.SplitHostKey(host, o.Port)
	o.Port = port
	addr := constants.HostKey(h, port)
	return &client{
		host: h,
		addr: addr,
		opts: o,
		log:  o.Logger.With().Str("host", addr).Logger(),
	}
}

// connect dials, verifies the host key and authenticates. The handshake is
// bounded by ctx.
func (c *client) connect(ctx context.Context) error {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()
	if connected {
		return nil
	}

	start := time.Now()
	auth, cleanup, err := authMethods(ctx, &c.opts, c.log)
	defer cleanup()
	if err != nil {
		return &AuthenticationError{User: c.opts.User, Addr: c.addr, Err: err}
	}

	hostKeyCallback := c.opts.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback, err = NewHostKeyCallback(c.opts.KnownHosts, c.log)
		if err != nil {
			return fmt.Errorf("host key verification failed: %w", err)
		}
	}

	config := &ssh.ClientConfig{
		User:            c.opts.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}

	c.log.Debug().Str("user", c.opts.User).Msg("connecting")

	netConn, err := dial(ctx, c.opts.Proxy, c.addr)
	if err != nil {
		if ctx.Err() != nil || IsTimeout(err) {
			return &TimeoutError{Op: "connect to " + c.addr, After: elapsed(start)}
		}
		return &TransportError{Op: "connect", Path: c.addr, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, c.addr, config)
	aborted := !stop()
	if err != nil {
		_ = netConn.Close()
		switch {
		case aborted || IsTimeout(err):
			return &TimeoutError{Op: "connect to " + c.addr, After: elapsed(start)}
		case isAuthError(err):
			return &AuthenticationError{User: c.opts.User, Addr: c.addr, Err: err}
		}
		return &TransportError{Op: "handshake", Path: c.addr, Err: err}
	}
	if aborted {
		_ = sshConn.Close()
		return &TimeoutError{Op: "connect to " + c.addr, After: elapsed(start)}
	}
	_ = netConn.SetDeadline(time.Time{})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = sshConn.Close()
		return nil
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.log.Debug().Dur("took", elapsed(start)).Msg("connected")
	return nil
}

func isAuthError(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// sshClient returns the live SSH client.
func (c *client) sshClient() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// sftpClient returns the SFTP session, opening it on first use. The mutex is
// not held while the subsystem starts, so a stalled host cannot block close.
func (c *client) sftpClient(ctx context.Context) (*sftp.Client, error) {
	c.mu.Lock()
	conn, cur := c.conn, c.sftp
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}
	if cur != nil {
		return cur, nil
	}

	return bounded(ctx, "open sftp session", func() (*sftp.Client, error) {
		sc, err := sftp.NewClient(conn)
		if err != nil {
			return nil, &TransportError{Op: "open sftp session", Path: c.addr, Err: err}
		}
		return c.storeSFTP(conn, sc)
	})
}

// storeSFTP keeps sc as the session of conn unless another caller won the
// race or the connection went away meanwhile.
func (c *client) storeSFTP(conn *ssh.Client, sc *sftp.Client) (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.conn != conn:
		_ = sc.Close()
		return nil, ErrNotConnected
	case c.sftp != nil:
		_ = sc.Close()
		return c.sftp, nil
	}
	c.sftp = sc
	return sc, nil
}

// bounded runs fn until it returns or ctx ends, whichever comes first. Channel
// opens and SFTP requests ignore ctx, so fn runs in its own goroutine; once
// ctx ends it is abandoned and unblocks when the connection is closed.
func bounded[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		v, err := fn()
		done <- outcome{v, err}
	}()

	var zero T
	select {
	case o := <-done:
		if aborted(ctx, o.err) {
			return zero, ctxError(ctx, op, start)
		}
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctxError(ctx, op, start)
	}
}

// aborted reports whether err is ctx giving up.
func aborted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

// acquire reserves the connection for a Shell or FileTailer.
func (c *client) acquire() (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if c.active {
		return nil, ErrSessionActive
	}
	c.active = true

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.active = false
			c.mu.Unlock()
		})
	}, nil
}

func (c *client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// close tears the connection down. Closing twice is a no-op.
func (c *client) close() error {
	c.mu.Lock()
	conn, sc := c.conn, c.sftp
	c.conn, c.sftp = nil, nil
	c.active = false
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	var errs []error
	if sc != nil {
		if err := sc.Close(); err != nil && !isClosedErr(err) {
			errs = append(errs, err)
		}
	}
	if err := conn.Close(); err != nil && !isClosedErr(err) {
		errs = append(errs, err)
	}
	c.log.Debug().Msg("disconnected")
	return errors.Join(errs...)
}

func isClosedErr(err error) bool {
	return strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "EOF")
}

// operationContext bounds ctx by timeout, falling back to the connection
// default. Zero everywhere means no bound.
func (c *client) operationContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
