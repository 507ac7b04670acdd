package sshtest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// scpSink receives one file as "scp -t target" would.
func scpSink(ch io.ReadWriter, target string) int {
	r := bufio.NewReader(ch)
	if _, err := ch.Write([]byte{0}); err != nil {
		return 1
	}

	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "C") {
		return scpFail(ch, "scp: protocol error: expected control record")
	}
	fields := strings.SplitN(strings.TrimSuffix(line[1:], "\n"), " ", 3)
	if len(fields) != 3 {
		return scpFail(ch, "scp: protocol error: malformed control record")
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return scpFail(ch, "scp: protocol error: bad size")
	}

	dest := target
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		dest = filepath.Join(target, fields[2])
	}
	f, err := os.Create(dest) //nolint:gosec // Test server.
	if err != nil {
		return scpFail(ch, fmt.Sprintf("scp: %s: %s", dest, reason(err)))
	}
	defer f.Close()

	if _, err := ch.Write([]byte{0}); err != nil {
		return 1
	}
	if _, err := io.CopyN(f, r, size); err != nil {
		return 1
	}
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return 1
	}
	if _, err := ch.Write([]byte{0}); err != nil {
		return 1
	}
	return 0
}

// scpSource sends one file as "scp -f path" would.
func scpSource(ch io.ReadWriter, path string) int {
	r := bufio.NewReader(ch)
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return 1
	}

	info, err := os.Stat(path)
	if err != nil {
		return scpFail(ch, fmt.Sprintf("scp: %s: %s", path, reason(err)))
	}
	if !info.Mode().IsRegular() {
		return scpFail(ch, fmt.Sprintf("scp: %s: not a regular file", path))
	}
	f, err := os.Open(path) //nolint:gosec // Test server.
	if err != nil {
		return scpFail(ch, fmt.Sprintf("scp: %s: %s", path, reason(err)))
	}
	defer f.Close()

	if _, err := fmt.Fprintf(ch, "C%04o %d %s\n", info.Mode().Perm(), info.Size(), info.Name()); err != nil {
		return 1
	}
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return 1
	}
	if _, err := io.Copy(ch, f); err != nil {
		return 1
	}
	if _, err := ch.Write([]byte{0}); err != nil {
		return 1
	}
	if b, err := r.ReadByte(); err != nil || b != 0 {
		return 1
	}
	return 0
}

func scpFail(w io.Writer, msg string) int {
	_, _ = fmt.Fprintf(w, "\x01%s\n", msg)
	return 1
}

func reason(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}
	return err.Error()
}
