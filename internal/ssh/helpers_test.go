package ssh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/testutil/sshtest"
)

const (
	testUser     = "tester"
	testPassword = "secret"
)

// newTestServer starts a server accepting testUser/testPassword and hides the
// developer's agent from the client.
func newTestServer(t *testing.T, opts ...sshtest.Option) *sshtest.Server {
	t.Helper()
	t.Setenv("SSH_AUTH_SOCK", "")
	opts = append([]sshtest.Option{sshtest.WithPassword(testUser, testPassword)}, opts...)
	return sshtest.NewServer(t, opts...)
}

func testOptions(t *testing.T, srv *sshtest.Server, extra ...Option) []Option {
	t.Helper()
	opts := []Option{
		WithPort(srv.Port),
		WithUser(testUser),
		WithPassword(testPassword),
		WithKeyDir(t.TempDir()),
		WithTimeout(10 * time.Second),
	}
	return append(opts, extra...)
}

func connectTest(t *testing.T, srv *sshtest.Server, extra ...Option) *Connection {
	t.Helper()
	conn := NewConnection(srv.Host, testOptions(t, srv, extra...)...)
	require.NoError(t, conn.Connect(0))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func connectAsyncTest(t *testing.T, srv *sshtest.Server, extra ...Option) *AsyncConnection {
	t.Helper()
	conn := NewAsyncConnection(srv.Host, testOptions(t, srv, extra...)...)
	require.NoError(t, conn.Connect(t.Context()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func fingerprintOf(pub ssh.PublicKey) string {
	return ssh.FingerprintSHA256(pub)
}

func contextWithTimeout(t *testing.T, d time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(t.Context(), d)
}
