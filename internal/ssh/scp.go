package ssh

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/security"
)

// scpSend streams size bytes from r to remotePath using the scp sink
// protocol: C<mode> <size> <name>\n<data>\0, each step acknowledged by the
// remote side.
func (c *client) scpSend(ctx context.Context, r io.Reader, size int64, name, remotePath string) error {
	sc, err := c.sshClient()
	if err != nil {
		return err
	}
	_, err = bounded(ctx, "scp write", func() (struct{}, error) {
		return struct{}{}, c.scpSink(ctx, sc, r, size, name, remotePath)
	})
	return err
}

func (c *client) scpSink(ctx context.Context, sc *ssh.Client, r io.Reader, size int64, name, remotePath string) error {
	session, err := sc.NewSession()
	if err != nil {
		return &TransportError{Op: "failed to create session", Path: c.addr, Err: err}
	}
	defer session.Close()
	stop := context.AfterFunc(ctx, func() { _ = session.Close() })

	stdin, err := session.StdinPipe()
	if err != nil {
		return &TransportError{Op: "failed to get stdin pipe", Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return &TransportError{Op: "failed to get stdout pipe", Err: err}
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	if err := session.Start("scp -t " + security.ShellEscape(remotePath)); err != nil {
		if !stop() {
			return ctx.Err()
		}
		return &TransportError{Op: "scp write", Path: remotePath, Err: err}
	}

	out := bufio.NewReader(stdout)
	err = func() error {
		if err := readAck(out); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(stdin, "C%04o %d %s\n", constants.DefaultFileMode, size, name); err != nil {
			return err
		}
		if err := readAck(out); err != nil {
			return err
		}
		if _, err := io.Copy(stdin, r); err != nil {
			return err
		}
		if _, err := stdin.Write([]byte{0}); err != nil {
			return err
		}
		return readAck(out)
	}()
	_ = stdin.Close()
	waitErr := session.Wait()

	if !stop() {
		return ctx.Err()
	}
	if err == nil {
		err = waitErr
	}
	if err != nil {
		return &TransportError{Op: "scp write", Path: remotePath, Err: withStderr(err, &stderr)}
	}
	return nil
}

// scpReceive copies remotePath into w using the scp source protocol.
func (c *client) scpReceive(ctx context.Context, remotePath string, w io.Writer) error {
	sc, err := c.sshClient()
	if err != nil {
		return err
	}
	_, err = bounded(ctx, "scp read", func() (struct{}, error) {
		return struct{}{}, c.scpSource(ctx, sc, remotePath, w)
	})
	return err
}

func (c *client) scpSource(ctx context.Context, sc *ssh.Client, remotePath string, w io.Writer) error {
	session, err := sc.NewSession()
	if err != nil {
		return &TransportError{Op: "failed to create session", Path: c.addr, Err: err}
	}
	defer session.Close()
	stop := context.AfterFunc(ctx, func() { _ = session.Close() })

	stdin, err := session.StdinPipe()
	if err != nil {
		return &TransportError{Op: "failed to get stdin pipe", Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return &TransportError{Op: "failed to get stdout pipe", Err: err}
	}
	var stderr bytes.Buffer
	session.Stderr = &stderr

	if err := session.Start("scp -f " + security.ShellEscape(remotePath)); err != nil {
		if !stop() {
			return ctx.Err()
		}
		return &TransportError{Op: "scp read", Path: remotePath, Err: err}
	}

	out := bufio.NewReader(stdout)
	err = func() error {
		if _, err := stdin.Write([]byte{0}); err != nil {
			return err
		}
		size, err := readHeader(out)
		if err != nil {
			return err
		}
		if _, err := stdin.Write([]byte{0}); err != nil {
			return err
		}
		if _, err := io.CopyN(w, out, size); err != nil {
			return err
		}
		if err := readAck(out); err != nil {
			return err
		}
		_, err = stdin.Write([]byte{0})
		return err
	}()
	_ = stdin.Close()
	waitErr := session.Wait()

	if !stop() {
		return ctx.Err()
	}
	if err == nil {
		err = waitErr
	}
	if err != nil {
		return &TransportError{Op: "scp read", Path: remotePath, Err: withStderr(err, &stderr)}
	}
	return nil
}

// readAck reads one scp status byte. 1 and 2 carry an error message.
func readAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("reading scp response: %w", err)
	}
	switch b {
	case 0:
		return nil
	case 1, 2:
		msg, _ := r.ReadString('\n')
		return errors.New(strings.TrimSpace(msg))
	}
	return fmt.Errorf("unexpected scp response %q", b)
}

// readHeader reads the C record announcing a file and returns its size.
func readHeader(r *bufio.Reader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("reading scp header: %w", err)
	}
	switch b {
	case 'C':
	case 1, 2:
		msg, _ := r.ReadString('\n')
		return 0, errors.New(strings.TrimSpace(msg))
	default:
		return 0, fmt.Errorf("unexpected scp record %q", b)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("reading scp header: %w", err)
	}
	fields := strings.SplitN(strings.TrimSuffix(line, "\n"), " ", 3)
	if len(fields) != 3 {
		return 0, fmt.Errorf("malformed scp header %q", line)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("malformed scp size %q", fields[1])
	}
	return size, nil
}

func withStderr(err error, stderr *bytes.Buffer) error {
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%w: %s", err, msg)
	}
	return err
}
