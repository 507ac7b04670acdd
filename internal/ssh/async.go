package ssh

import (
	"context"
	"fmt"
)

// AsyncConnection is the context-native counterpart of Connection. Deadlines
// and cancellation come from the context passed to each call; the WithTimeout
// default still bounds calls whose context has no deadline.
//
// AsyncConnection implements Host.
type AsyncConnection struct {
	c *client
}

// NewAsyncConnection creates a connection to host. Nothing is dialed until
// Connect.
func NewAsyncConnection(host string, opts ...Option) *AsyncConnection {
	return &AsyncConnection{c: newClient(host, opts...)}
}

// Addr returns the host:port identity of the connection.
func (a *AsyncConnection) Addr() string { return a.c.addr }

// Host returns the host name.
func (a *AsyncConnection) Host() string { return a.c.host }

// Port returns the SSH port.
func (a *AsyncConnection) Port() int { return a.c.opts.Port }

// User returns the login user.
func (a *AsyncConnection) User() string { return a.c.opts.User }

// IsConnected returns true if the connection is established
func (a *AsyncConnection) IsConnected() bool { return a.c.isConnected() }

func (a *AsyncConnection) String() string {
	return fmt.Sprintf("AsyncConnection(%s@%s)", a.c.opts.User, a.c.addr)
}

func (a *AsyncConnection) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return a.c.operationContext(ctx, 0)
}

// Connect establishes the session. Connecting twice is a no-op.
func (a *AsyncConnection) Connect(ctx context.Context) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.connect(ctx)
}

// Execute runs command. When ctx expires first the Result carries status -1
// alongside a *TimeoutError and the connection stays usable.
func (a *AsyncConnection) Execute(ctx context.Context, command string) (*Result, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.execute(ctx, command)
}

// SCPWrite uploads a local file using scp.
func (a *AsyncConnection) SCPWrite(ctx context.Context, localPath, remotePath string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.scpWrite(ctx, localPath, remotePath)
}

// SCPWriteData uploads data to remotePath using scp.
func (a *AsyncConnection) SCPWriteData(ctx context.Context, data []byte, remotePath string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.scpWriteData(ctx, data, remotePath)
}

// SCPRead downloads remotePath using scp.
func (a *AsyncConnection) SCPRead(ctx context.Context, remotePath, localPath string) (string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.scpRead(ctx, remotePath, localPath)
}

// SFTPWrite uploads a local file over SFTP.
func (a *AsyncConnection) SFTPWrite(ctx context.Context, localPath, remotePath string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.sftpWrite(ctx, localPath, remotePath)
}

// SFTPWriteData uploads data to remotePath over SFTP.
func (a *AsyncConnection) SFTPWriteData(ctx context.Context, data []byte, remotePath string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.sftpWriteData(ctx, data, remotePath)
}

// SFTPRead downloads remotePath over SFTP.
func (a *AsyncConnection) SFTPRead(ctx context.Context, remotePath, localPath string) (string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.sftpRead(ctx, remotePath, localPath)
}

// SFTPList returns the sorted names in a remote directory.
func (a *AsyncConnection) SFTPList(ctx context.Context, remotePath string) ([]string, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.sftpList(ctx, remotePath)
}

// RemoteCopy streams remotePath from this host to destPath on dest.
func (a *AsyncConnection) RemoteCopy(ctx context.Context, remotePath string, dest *AsyncConnection, destPath string) error {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.remoteCopy(ctx, remotePath, dest.c, destPath)
}

// Shell opens an interactive shell.
func (a *AsyncConnection) Shell(ctx context.Context, pty bool) (*Shell, error) {
	return a.c.openShell(ctx, pty)
}

// Tail opens a FileTailer on remotePath positioned at its current end.
func (a *AsyncConnection) Tail(ctx context.Context, remotePath string) (*FileTailer, error) {
	ctx, cancel := a.bound(ctx)
	defer cancel()
	return a.c.openTail(ctx, remotePath)
}

// Close closes the connection. Closing twice is a no-op.
func (a *AsyncConnection) Close() error {
	return a.c.close()
}
