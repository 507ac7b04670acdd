package ssh

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

func TestAsyncConnection(t *testing.T) {
	srv := newTestServer(t)
	conn := connectAsyncTest(t, srv)
	ctx := t.Context()

	require.Equal(t, srv.Addr(), conn.Addr())
	require.Equal(t, "AsyncConnection(tester@"+srv.Addr()+")", conn.String())

	res, err := conn.Execute(ctx, "echo async")
	require.NoError(t, err)
	require.Equal(t, "async\n", res.Stdout)

	remote := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, conn.SFTPWriteData(ctx, []byte(testContent), remote))
	got, err := conn.SFTPRead(ctx, remote, "")
	require.NoError(t, err)
	require.Equal(t, testContent, got)

	scpRemote := filepath.Join(t.TempDir(), "b.txt")
	require.NoError(t, conn.SCPWriteData(ctx, []byte(testContent), scpRemote))
	got, err = conn.SCPRead(ctx, scpRemote, "")
	require.NoError(t, err)
	require.Equal(t, testContent, got)
}

func TestAsyncExecuteDeadline(t *testing.T) {
	srv := newTestServer(t)
	conn := connectAsyncTest(t, srv)

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()
	res, err := conn.Execute(ctx, "sleep 5")
	require.True(t, IsTimeout(err))
	require.Equal(t, constants.SentinelStatus, res.Status)

	res, err = conn.Execute(t.Context(), "echo ok")
	require.NoError(t, err)
	require.Equal(t, "ok\n", res.Stdout)
}

func TestAsyncExecuteCanceled(t *testing.T) {
	srv := newTestServer(t)
	conn := connectAsyncTest(t, srv)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(200*time.Millisecond, cancel)
	res, err := conn.Execute(ctx, "sleep 5")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTimeout(err))
	require.Equal(t, constants.SentinelStatus, res.Status)
}

func TestBlockingHost(t *testing.T) {
	srv := newTestServer(t)
	conn := NewConnection(srv.Host, testOptions(t, srv)...)
	host := Blocking(conn)
	defer host.Close()

	require.Equal(t, srv.Addr(), host.Addr())
	require.NoError(t, host.Connect(t.Context()))

	ctx, cancel := context.WithTimeout(t.Context(), 300*time.Millisecond)
	defer cancel()
	res, err := host.Execute(ctx, "sleep 5")
	require.True(t, IsTimeout(err))
	require.Equal(t, constants.SentinelStatus, res.Status)

	remote := filepath.Join(t.TempDir(), "blocking.txt")
	require.NoError(t, host.SFTPWriteData(t.Context(), []byte("x"), remote))
	got, err := host.SFTPRead(t.Context(), remote, "")
	require.NoError(t, err)
	require.Equal(t, "x", got)
}

func TestTimeoutFrom(t *testing.T) {
	require.Zero(t, timeoutFrom(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	require.Greater(t, timeoutFrom(ctx), 59*time.Minute)

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	require.Positive(t, timeoutFrom(expired))
}
