package ssh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockHost(t *testing.T) {
	ctx := t.Context()
	mock := NewMockHost("10.0.0.1:22")

	require.NoError(t, mock.Connect(ctx))
	require.True(t, mock.Connected())

	res, err := mock.Execute(ctx, "uptime")
	require.NoError(t, err)
	require.Equal(t, 0, res.Status)
	require.Equal(t, []string{"uptime"}, mock.Commands())

	require.NoError(t, mock.SFTPWriteData(ctx, []byte("cfg"), "/etc/app.conf"))
	got, err := mock.SFTPRead(ctx, "/etc/app.conf", "")
	require.NoError(t, err)
	require.Equal(t, "cfg", got)

	local := filepath.Join(t.TempDir(), "out", "app.conf")
	got, err = mock.SFTPRead(ctx, "/etc/app.conf", local)
	require.NoError(t, err)
	require.Equal(t, "Ok", got)
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	require.Equal(t, "cfg", string(data))

	_, err = mock.SFTPRead(ctx, "/missing", "")
	var tre *TransportError
	require.ErrorAs(t, err, &tre)

	require.NoError(t, mock.Close())
	require.True(t, mock.Closed())
	require.False(t, mock.Connected())
}

func TestMockHostFuncs(t *testing.T) {
	boom := errors.New("boom")
	mock := &MockHost{
		HostAddr:    "10.0.0.2:22",
		ConnectFunc: func(context.Context) error { return boom },
		ExecuteFunc: func(_ context.Context, cmd string) (*Result, error) {
			return &Result{Stdout: cmd, Status: 2}, nil
		},
	}

	require.ErrorIs(t, mock.Connect(t.Context()), boom)
	require.False(t, mock.Connected())

	res, err := mock.Execute(t.Context(), "echo")
	require.NoError(t, err)
	require.Equal(t, 2, res.Status)
	require.Equal(t, "echo", res.Stdout)
}
