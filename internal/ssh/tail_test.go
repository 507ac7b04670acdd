package ssh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func appendLocal(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestTail(t *testing.T) {
	srv := newTestServer(t)
	conn := connectTest(t, srv)
	path := writeLocal(t, "tail.txt", testContent)

	tailer, err := conn.Tail(path)
	require.NoError(t, err)
	require.Equal(t, int64(len(testContent)), tailer.LastPos())
	require.Equal(t, int64(len(testContent)), tailer.StartPos())

	got, err := tailer.Read(t.Context())
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = tailer.ReadSince(t.Context(), 0)
	require.NoError(t, err)
	require.Equal(t, testContent, got)

	appendLocal(t, path, "goodbye\n")
	got, err = tailer.Read(t.Context())
	require.NoError(t, err)
	require.Equal(t, "goodbye\n", got)

	appendLocal(t, path, "again\n")
	require.NoError(t, tailer.Close(t.Context()))
	require.Equal(t, "goodbye\nagain\n", tailer.Contents())

	// The connection is free again once the tailer is closed
	tailer, err = conn.Tail(path)
	require.NoError(t, err)
	require.NoError(t, tailer.Close(t.Context()))
}

func TestTailMissingFile(t *testing.T) {
	srv := newTestServer(t)
	conn := connectTest(t, srv)

	_, err := conn.Tail(filepath.Join(t.TempDir(), "missing.log"))
	var tre *TransportError
	require.ErrorAs(t, err, &tre)

	// A failed open does not hold the connection
	tailer, err := conn.Tail(writeLocal(t, "present.log", ""))
	require.NoError(t, err)
	require.NoError(t, tailer.Close(t.Context()))
}

func TestFileTailerPositions(t *testing.T) {
	mock := NewMockHost("10.0.0.1:22")
	mock.AppendFile("/var/log/app.log", []byte("0123456789"))

	tailer, err := mock.Tail(t.Context(), "/var/log/app.log")
	require.NoError(t, err)
	require.Equal(t, int64(10), tailer.LastPos())

	// Past the end: empty, position kept
	got, err := tailer.ReadSince(t.Context(), 50)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, int64(10), tailer.LastPos())

	// Snapshot from an earlier offset does not rewind
	got, err = tailer.ReadSince(t.Context(), 4)
	require.NoError(t, err)
	require.Equal(t, "456789", got)
	require.Equal(t, int64(10), tailer.LastPos())
	require.Empty(t, tailer.Contents())

	// A snapshot overlapping new data only records the new part
	mock.AppendFile("/var/log/app.log", []byte("abc"))
	got, err = tailer.ReadSince(t.Context(), 8)
	require.NoError(t, err)
	require.Equal(t, "89abc", got)
	require.Equal(t, int64(13), tailer.LastPos())
	require.Equal(t, "abc", tailer.Contents())

	mock.AppendFile("/var/log/app.log", []byte("def"))
	require.NoError(t, tailer.Close(t.Context()))
	require.NoError(t, tailer.Close(t.Context()))
	require.Equal(t, "abcdef", tailer.Contents())
}
