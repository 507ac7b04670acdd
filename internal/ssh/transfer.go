package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/security"
)

// resolveRemotePath appends the local file name to a remote path that names a
// directory.
func resolveRemotePath(remotePath, localPath string) string {
	if strings.HasSuffix(remotePath, "/") {
		return path.Join(remotePath, filepath.Base(localPath))
	}
	return remotePath
}

func checkRemotePath(op, remotePath string) error {
	if err := security.ValidateRemotePath(remotePath); err != nil {
		return &TransportError{Op: op, Path: remotePath, Err: err}
	}
	return nil
}

// scpWrite uploads a local file over scp
func (c *client) scpWrite(ctx context.Context, localPath, remotePath string) error {
	if err := checkRemotePath("scp write", remotePath); err != nil {
		return err
	}
	f, err := os.Open(localPath) //nolint:gosec // Path is from the caller.
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat local file: %w", err)
	}

	remotePath = resolveRemotePath(remotePath, localPath)
	c.log.Debug().Str("local", localPath).Str("remote", remotePath).Msg("scp upload")
	return c.scpSend(ctx, f, info.Size(), filepath.Base(localPath), remotePath)
}

// scpWriteData uploads data over scp
func (c *client) scpWriteData(ctx context.Context, data []byte, remotePath string) error {
	if err := checkRemotePath("scp write", remotePath); err != nil {
		return err
	}
	if strings.HasSuffix(remotePath, "/") {
		return &TransportError{Op: "scp write", Path: remotePath, Err: errors.New("remote path is a directory")}
	}
	c.log.Debug().Str("remote", remotePath).Int("bytes", len(data)).Msg("scp upload")
	return c.scpSend(ctx, bytes.NewReader(data), int64(len(data)), path.Base(remotePath), remotePath)
}

// scpRead downloads remotePath over scp. With a localPath the file is saved
// there and "Ok" is returned instead of the contents.
func (c *client) scpRead(ctx context.Context, remotePath, localPath string) (string, error) {
	if err := checkRemotePath("scp read", remotePath); err != nil {
		return "", err
	}
	if localPath == "" {
		var buf bytes.Buffer
		if err := c.scpReceive(ctx, remotePath, &buf); err != nil {
			return "", err
		}
		return buf.String(), nil
	}

	f, err := createLocal(localPath)
	if err != nil {
		return "", err
	}
	if err := c.scpReceive(ctx, remotePath, f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write local file: %w", err)
	}
	return constants.TransferOKMarker, nil
}

// sftpWrite uploads a local file over SFTP
func (c *client) sftpWrite(ctx context.Context, localPath, remotePath string) error {
	if err := checkRemotePath("sftp write", remotePath); err != nil {
		return err
	}
	f, err := os.Open(localPath) //nolint:gosec // Path is from the caller.
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer f.Close()

	remotePath = resolveRemotePath(remotePath, localPath)
	c.log.Debug().Str("local", localPath).Str("remote", remotePath).Msg("sftp upload")
	return c.sftpPut(ctx, f, remotePath)
}

// sftpWriteData uploads data over SFTP
func (c *client) sftpWriteData(ctx context.Context, data []byte, remotePath string) error {
	if err := checkRemotePath("sftp write", remotePath); err != nil {
		return err
	}
	if strings.HasSuffix(remotePath, "/") {
		return &TransportError{Op: "sftp write", Path: remotePath, Err: errors.New("remote path is a directory")}
	}
	c.log.Debug().Str("remote", remotePath).Int("bytes", len(data)).Msg("sftp upload")
	return c.sftpPut(ctx, bytes.NewReader(data), remotePath)
}

func (c *client) sftpPut(ctx context.Context, r io.Reader, remotePath string) error {
	sc, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}

	_, err = bounded(ctx, "sftp write", func() (struct{}, error) {
		start := time.Now()
		dst, err := sc.Create(remotePath)
		if err != nil {
			return struct{}{}, &TransportError{Op: "sftp write", Path: remotePath, Err: err}
		}
		if _, err := copyContext(ctx, "sftp write", start, dst, r, dst); err != nil {
			_ = dst.Close()
			return struct{}{}, wrapTransport("sftp write", remotePath, err)
		}
		if err := dst.Close(); err != nil {
			return struct{}{}, &TransportError{Op: "sftp write", Path: remotePath, Err: err}
		}
		return struct{}{}, nil
	})
	return err
}

// sftpRead downloads remotePath over SFTP. With a localPath the file is
// saved there and "Ok" is returned instead of the contents.
func (c *client) sftpRead(ctx context.Context, remotePath, localPath string) (string, error) {
	if err := checkRemotePath("sftp read", remotePath); err != nil {
		return "", err
	}
	sc, err := c.sftpClient(ctx)
	if err != nil {
		return "", err
	}

	return bounded(ctx, "sftp read", func() (string, error) {
		start := time.Now()
		src, err := openRemoteFile(sc, remotePath)
		if err != nil {
			return "", err
		}
		defer src.Close()

		if localPath == "" {
			var buf bytes.Buffer
			if _, err := copyContext(ctx, "sftp read", start, &buf, src, src); err != nil {
				return "", wrapTransport("sftp read", remotePath, err)
			}
			return buf.String(), nil
		}

		dst, err := createLocal(localPath)
		if err != nil {
			return "", err
		}
		if _, err := copyContext(ctx, "sftp read", start, dst, src, src); err != nil {
			_ = dst.Close()
			return "", wrapTransport("sftp read", remotePath, err)
		}
		if err := dst.Close(); err != nil {
			return "", fmt.Errorf("failed to write local file: %w", err)
		}
		return constants.TransferOKMarker, nil
	})
}

// sftpList returns the sorted entry names of a remote directory.
func (c *client) sftpList(ctx context.Context, remotePath string) ([]string, error) {
	if err := checkRemotePath("sftp list", remotePath); err != nil {
		return nil, err
	}
	sc, err := c.sftpClient(ctx)
	if err != nil {
		return nil, err
	}
	return bounded(ctx, "sftp list", func() ([]string, error) {
		entries, err := sc.ReadDir(remotePath)
		if err != nil {
			return nil, &TransportError{Op: "sftp list", Path: remotePath, Err: err}
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return names, nil
	})
}

// remoteCopy streams remotePath from this host into destPath on dest. The
// bytes never touch the local disk. An empty destPath reuses remotePath.
func (c *client) remoteCopy(ctx context.Context, remotePath string, dest *client, destPath string) error {
	if destPath == "" {
		destPath = remotePath
	}
	if err := checkRemotePath("remote copy", remotePath); err != nil {
		return err
	}
	if err := checkRemotePath("remote copy", destPath); err != nil {
		return err
	}

	srcClient, err := c.sftpClient(ctx)
	if err != nil {
		return err
	}
	dstClient, err := dest.sftpClient(ctx)
	if err != nil {
		return err
	}

	n, err := bounded(ctx, "remote copy", func() (int64, error) {
		start := time.Now()
		src, err := openRemoteFile(srcClient, remotePath)
		if err != nil {
			return 0, err
		}
		defer src.Close()

		dst, err := dstClient.Create(destPath)
		if err != nil {
			return 0, &TransportError{Op: "remote copy", Path: dest.addr + ":" + destPath, Err: err}
		}
		n, err := copyContext(ctx, "remote copy", start, dst, src, src, dst)
		if err != nil {
			_ = dst.Close()
			return 0, wrapTransport("remote copy", remotePath, err)
		}
		if err := dst.Close(); err != nil {
			return 0, &TransportError{Op: "remote copy", Path: dest.addr + ":" + destPath, Err: err}
		}
		return n, nil
	})
	if err != nil {
		return err
	}
	c.log.Debug().Str("dest", dest.addr).Str("path", destPath).Int64("bytes", n).Msg("remote copy done")
	return nil
}

// openRemoteFile opens a regular remote file for reading.
func openRemoteFile(sc *sftp.Client, remotePath string) (*sftp.File, error) {
	f, err := sc.Open(remotePath)
	if err != nil {
		return nil, &TransportError{Op: "sftp open", Path: remotePath, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &TransportError{Op: "sftp stat", Path: remotePath, Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &TransportError{Op: "sftp open", Path: remotePath, Err: errIsDirectory}
	}
	return f, nil
}

// copyContext copies src to dst and closes closers when ctx ends first.
func copyContext(ctx context.Context, op string, start time.Time, dst io.Writer, src io.Reader, closers ...io.Closer) (int64, error) {
	stop := context.AfterFunc(ctx, func() {
		for _, c := range closers {
			_ = c.Close()
		}
	})
	n, err := io.Copy(dst, src)
	if !stop() {
		return n, ctxError(ctx, op, start)
	}
	return n, err
}

func wrapTransport(op, remotePath string, err error) error {
	var te *TimeoutError
	if errors.As(err, &te) || errors.Is(err, context.Canceled) {
		return err
	}
	return &TransportError{Op: op, Path: remotePath, Err: err}
}

func createLocal(localPath string) (*os.File, error) {
	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create local directory: %w", err)
		}
	}
	f, err := os.Create(localPath) //nolint:gosec // Path is from the caller.
	if err != nil {
		return nil, fmt.Errorf("failed to create local file: %w", err)
	}
	return f, nil
}
