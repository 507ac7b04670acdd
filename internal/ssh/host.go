package ssh

import (
	"context"
	"time"
)

// Host is the per-host capability set driven by the fleet engine. Every call
// is bounded by its context.
type Host interface {
	Addr() string
	Connect(ctx context.Context) error
	Execute(ctx context.Context, command string) (*Result, error)
	SFTPWrite(ctx context.Context, localPath, remotePath string) error
	SFTPWriteData(ctx context.Context, data []byte, remotePath string) error
	SFTPRead(ctx context.Context, remotePath, localPath string) (string, error)
	Shell(ctx context.Context, pty bool) (*Shell, error)
	Tail(ctx context.Context, remotePath string) (*FileTailer, error)
	Close() error
}

// Ensure implementations satisfy the interface
var (
	_ Host = (*AsyncConnection)(nil)
	_ Host = (*blockingHost)(nil)
	_ Host = (*MockHost)(nil)
)

// Blocking adapts a blocking Connection to Host. The context deadline becomes
// the timeout of each call.
func Blocking(conn *Connection) Host {
	return &blockingHost{conn: conn}
}

type blockingHost struct {
	conn *Connection
}

// timeoutFrom converts the time left on ctx into a call timeout. Zero means
// the connection default applies.
func timeoutFrom(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	if left := time.Until(deadline); left > 0 {
		return left
	}
	return time.Nanosecond
}

func (b *blockingHost) Addr() string { return b.conn.Addr() }

func (b *blockingHost) Connect(ctx context.Context) error {
	return b.conn.Connect(timeoutFrom(ctx))
}

func (b *blockingHost) Execute(ctx context.Context, command string) (*Result, error) {
	return b.conn.Execute(command, timeoutFrom(ctx))
}

func (b *blockingHost) SFTPWrite(ctx context.Context, localPath, remotePath string) error {
	ctx, cancel := b.conn.c.operationContext(ctx, timeoutFrom(ctx))
	defer cancel()
	return b.conn.c.sftpWrite(ctx, localPath, remotePath)
}

func (b *blockingHost) SFTPWriteData(ctx context.Context, data []byte, remotePath string) error {
	ctx, cancel := b.conn.c.operationContext(ctx, timeoutFrom(ctx))
	defer cancel()
	return b.conn.c.sftpWriteData(ctx, data, remotePath)
}

func (b *blockingHost) SFTPRead(ctx context.Context, remotePath, localPath string) (string, error) {
	ctx, cancel := b.conn.c.operationContext(ctx, timeoutFrom(ctx))
	defer cancel()
	return b.conn.c.sftpRead(ctx, remotePath, localPath)
}

func (b *blockingHost) Shell(_ context.Context, pty bool) (*Shell, error) {
	return b.conn.Shell(pty)
}

func (b *blockingHost) Tail(ctx context.Context, remotePath string) (*FileTailer, error) {
	ctx, cancel := b.conn.c.operationContext(ctx, timeoutFrom(ctx))
	defer cancel()
	return b.conn.c.openTail(ctx, remotePath)
}

func (b *blockingHost) Close() error { return b.conn.Close() }
