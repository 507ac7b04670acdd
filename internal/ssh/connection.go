package ssh

import (
	"context"
	"fmt"
	"time"
)

// Connection is a blocking SSH connection to one host. Every call blocks the
// calling goroutine until it completes or its timeout elapses. A timeout of
// zero falls back to the WithTimeout default.
//
// A Connection is not reentrant; use one per goroutine.
type Connection struct {
	c *client
}

// NewConnection creates a connection to host. host may carry a port
// ("host:2222") which wins over WithPort. Nothing is dialed until Connect.
func NewConnection(host string, opts ...Option) *Connection {
	return &Connection{c: newClient(host, opts...)}
}

// Dial creates a connection and connects it with the default timeout.
func Dial(host string, opts ...Option) (*Connection, error) {
	conn := NewConnection(host, opts...)
	if err := conn.Connect(0); err != nil {
		return nil, err
	}
	return conn, nil
}

// Addr returns the host:port identity of the connection.
func (conn *Connection) Addr() string { return conn.c.addr }

// Host returns the host name.
func (conn *Connection) Host() string { return conn.c.host }

// Port returns the SSH port.
func (conn *Connection) Port() int { return conn.c.opts.Port }

// User returns the login user.
func (conn *Connection) User() string { return conn.c.opts.User }

// IsConnected returns true if the connection is established
func (conn *Connection) IsConnected() bool { return conn.c.isConnected() }

func (conn *Connection) String() string {
	return fmt.Sprintf("Connection(%s@%s)", conn.c.opts.User, conn.c.addr)
}

// Connect establishes the session. Connecting twice is a no-op.
func (conn *Connection) Connect(timeout time.Duration) error {
	ctx, cancel := conn.c.operationContext(context.Background(), timeout)
	defer cancel()
	return conn.c.connect(ctx)
}

// Execute runs command and returns its output and exit status. On timeout the
// returned Result carries status -1 alongside a *TimeoutError.
func (conn *Connection) Execute(command string, timeout time.Duration) (*Result, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), timeout)
	defer cancel()
	return conn.c.execute(ctx, command)
}

// SCPWrite uploads a local file using scp.
func (conn *Connection) SCPWrite(localPath, remotePath string) error {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.scpWrite(ctx, localPath, remotePath)
}

// SCPWriteData uploads data to remotePath using scp.
func (conn *Connection) SCPWriteData(data []byte, remotePath string) error {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.scpWriteData(ctx, data, remotePath)
}

// SCPRead downloads remotePath using scp. It returns the contents, or "Ok"
// when localPath is set and the file was saved there.
func (conn *Connection) SCPRead(remotePath, localPath string) (string, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.scpRead(ctx, remotePath, localPath)
}

// SFTPWrite uploads a local file over SFTP. A remotePath ending in "/" gets
// the local file name appended.
func (conn *Connection) SFTPWrite(localPath, remotePath string) error {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.sftpWrite(ctx, localPath, remotePath)
}

// SFTPWriteData uploads data to remotePath over SFTP.
func (conn *Connection) SFTPWriteData(data []byte, remotePath string) error {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.sftpWriteData(ctx, data, remotePath)
}

// SFTPRead downloads remotePath over SFTP. It returns the contents, or "Ok"
// when localPath is set and the file was saved there.
func (conn *Connection) SFTPRead(remotePath, localPath string) (string, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.sftpRead(ctx, remotePath, localPath)
}

// SFTPList returns the sorted names in a remote directory.
func (conn *Connection) SFTPList(remotePath string) ([]string, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.sftpList(ctx, remotePath)
}

// RemoteCopy streams remotePath from this host to destPath on dest without
// staging it locally. An empty destPath reuses remotePath.
func (conn *Connection) RemoteCopy(remotePath string, dest *Connection, destPath string) error {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.remoteCopy(ctx, remotePath, dest.c, destPath)
}

// Shell opens an interactive shell, optionally on a pseudo-terminal. The
// connection accepts no other Shell or FileTailer until it is closed.
func (conn *Connection) Shell(pty bool) (*Shell, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.openShell(ctx, pty)
}

// Tail opens a FileTailer on remotePath positioned at its current end.
func (conn *Connection) Tail(remotePath string) (*FileTailer, error) {
	ctx, cancel := conn.c.operationContext(context.Background(), 0)
	defer cancel()
	return conn.c.openTail(ctx, remotePath)
}

// Close closes the connection. Closing twice is a no-op.
func (conn *Connection) Close() error {
	return conn.c.close()
}
