package ssh

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
)

// TailSource gives a FileTailer access to a growing file. A call that ignores
// ctx is abandoned by the tailer once ctx ends.
type TailSource interface {
	// Size returns the current size of the file.
	Size(ctx context.Context, path string) (int64, error)
	// ReadAt returns everything from offset to the end of the file. An
	// offset past the end yields no data.
	ReadAt(ctx context.Context, path string, offset int64) ([]byte, error)
}

// FileTailer follows a remote file that only grows. It keeps no remote
// process alive: every read stats the file and fetches the new range.
type FileTailer struct {
	path    string
	src     TailSource
	release func()

	mu       sync.Mutex
	startPos int64
	lastPos  int64
	contents strings.Builder
	closed   bool
}

// NewFileTailer opens a tailer on path, positioned at the current end of the
// file. release, if not nil, runs once on Close.
func NewFileTailer(ctx context.Context, path string, src TailSource, release func()) (*FileTailer, error) {
	size, err := bounded(ctx, "tail", func() (int64, error) {
		return src.Size(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	if release == nil {
		release = func() {}
	}
	return &FileTailer{
		path:     path,
		src:      src,
		release:  release,
		startPos: size,
		lastPos:  size,
	}, nil
}

// Path returns the followed file.
func (t *FileTailer) Path() string {
	return t.path
}

// StartPos returns the file size seen when the tailer was opened.
func (t *FileTailer) StartPos() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startPos
}

// LastPos returns the offset up to which data has been delivered.
func (t *FileTailer) LastPos() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPos
}

// Read returns the bytes appended since the last read.
func (t *FileTailer) Read(ctx context.Context) (string, error) {
	return t.ReadSince(ctx, t.LastPos())
}

// ReadSince returns the file contents from pos onwards. LastPos only moves
// forward: a read from an earlier offset returns the snapshot without
// replaying bytes into Contents.
func (t *FileTailer) ReadSince(ctx context.Context, pos int64) (string, error) {
	if pos < 0 {
		pos = 0
	}
	data, err := bounded(ctx, "tail", func() ([]byte, error) {
		return t.src.ReadAt(ctx, t.path, pos)
	})
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	end := pos + int64(len(data))
	if end > t.lastPos {
		fresh := data
		if skip := t.lastPos - pos; skip > 0 {
			fresh = data[skip:]
		}
		t.contents.Write(fresh)
		t.lastPos = end
	}
	return string(data), nil
}

// Contents returns every byte appended to the file since the tailer was
// opened, as delivered by reads so far. It is final after Close.
func (t *FileTailer) Contents() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contents.String()
}

// Close performs a last read so Contents covers everything written up to now.
// Closing twice is a no-op.
func (t *FileTailer) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	defer t.release()

	_, err := t.Read(ctx)
	return err
}

// sftpTailSource reads a remote file through an SFTP session.
type sftpTailSource struct {
	sc *sftp.Client
}

func (s sftpTailSource) Size(_ context.Context, path string) (int64, error) {
	info, err := s.sc.Stat(path)
	if err != nil {
		return 0, &TransportError{Op: "tail", Path: path, Err: err}
	}
	if info.IsDir() {
		return 0, &TransportError{Op: "tail", Path: path, Err: errIsDirectory}
	}
	return info.Size(), nil
}

func (s sftpTailSource) ReadAt(ctx context.Context, path string, offset int64) ([]byte, error) {
	start := time.Now()
	f, err := s.sc.Open(path)
	if err != nil {
		return nil, &TransportError{Op: "tail", Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &TransportError{Op: "tail", Path: path, Err: err}
	}
	if offset >= info.Size() {
		return nil, nil
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, &TransportError{Op: "tail", Path: path, Err: err}
	}

	var buf strings.Builder
	if _, err := copyContext(ctx, "tail", start, &buf, io.LimitReader(f, info.Size()-offset), f); err != nil {
		return nil, wrapTransport("tail", path, err)
	}
	return []byte(buf.String()), nil
}

// openTail opens a FileTailer over the connection's SFTP session.
func (c *client) openTail(ctx context.Context, path string) (*FileTailer, error) {
	if err := checkRemotePath("tail", path); err != nil {
		return nil, err
	}
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	sc, err := c.sftpClient(ctx)
	if err != nil {
		release()
		return nil, err
	}
	t, err := NewFileTailer(ctx, path, sftpTailSource{sc: sc}, release)
	if err != nil {
		release()
		return nil, err
	}
	c.log.Debug().Str("path", path).Int64("pos", t.StartPos()).Msg("tailing")
	return t, nil
}

// openShell opens a Shell reserving the connection until it is closed.
// Opening is bounded by ctx; the session itself outlives it.
func (c *client) openShell(ctx context.Context, pty bool) (*Shell, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	sc, err := c.sshClient()
	if err != nil {
		release()
		return nil, err
	}
	s, err := bounded(ctx, "open shell", func() (*Shell, error) {
		s, err := startShell(sc, pty, release)
		if err == nil && ctx.Err() != nil {
			_ = s.session.Close()
			return nil, ctx.Err()
		}
		return s, err
	})
	if err != nil {
		release()
		return nil, err
	}
	c.log.Debug().Bool("pty", pty).Msg("shell opened")
	return s, nil
}
