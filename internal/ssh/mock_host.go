package ssh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// MockHost is a Host for testing. Unset funcs fall back to an in-memory file
// system and successful empty command results.
type MockHost struct {
	HostAddr string

	ConnectFunc func(ctx context.Context) error
	ExecuteFunc func(ctx context.Context, command string) (*Result, error)
	WriteFunc   func(ctx context.Context, data []byte, remotePath string) error
	ReadFunc    func(ctx context.Context, remotePath string) (string, error)
	TailFunc    func(ctx context.Context, remotePath string) (*FileTailer, error)
	CloseFunc   func() error

	mu        sync.Mutex
	files     map[string][]byte
	commands  []string
	connected bool
	closed    bool
}

// NewMockHost creates a mock for addr.
func NewMockHost(addr string) *MockHost {
	return &MockHost{HostAddr: addr}
}

func (m *MockHost) Addr() string { return m.HostAddr }

func (m *MockHost) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

func (m *MockHost) Execute(ctx context.Context, command string) (*Result, error) {
	m.mu.Lock()
	m.commands = append(m.commands, command)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, command)
	}
	return &Result{}, nil
}

func (m *MockHost) SFTPWrite(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath) //nolint:gosec // Test helper.
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	return m.SFTPWriteData(ctx, data, resolveRemotePath(remotePath, localPath))
}

func (m *MockHost) SFTPWriteData(ctx context.Context, data []byte, remotePath string) error {
	if m.WriteFunc != nil {
		return m.WriteFunc(ctx, data, remotePath)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[remotePath] = append([]byte(nil), data...)
	return nil
}

func (m *MockHost) SFTPRead(ctx context.Context, remotePath, localPath string) (string, error) {
	var content string
	if m.ReadFunc != nil {
		var err error
		if content, err = m.ReadFunc(ctx, remotePath); err != nil {
			return "", err
		}
	} else {
		data, ok := m.File(remotePath)
		if !ok {
			return "", &TransportError{Op: "sftp open", Path: remotePath, Err: os.ErrNotExist}
		}
		content = string(data)
	}

	if localPath == "" {
		return content, nil
	}
	f, err := createLocal(localPath)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return constants.TransferOKMarker, nil
}

func (m *MockHost) Shell(_ context.Context, _ bool) (*Shell, error) {
	return nil, errors.New("shell not supported by MockHost")
}

func (m *MockHost) Tail(ctx context.Context, remotePath string) (*FileTailer, error) {
	if m.TailFunc != nil {
		return m.TailFunc(ctx, remotePath)
	}
	return NewFileTailer(ctx, remotePath, mockTailSource{m}, nil)
}

func (m *MockHost) Close() error {
	m.mu.Lock()
	m.closed = true
	m.connected = false
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// File returns the in-memory contents of remotePath.
func (m *MockHost) File(remotePath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[remotePath]
	return append([]byte(nil), data...), ok
}

// AppendFile appends data to an in-memory file, creating it if needed.
func (m *MockHost) AppendFile(remotePath string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[remotePath] = append(m.files[remotePath], data...)
}

// Commands returns the commands executed so far, in order.
func (m *MockHost) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Connected reports whether Connect succeeded and Close was not called since.
func (m *MockHost) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Closed reports whether Close was called.
func (m *MockHost) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockTailSource serves a MockHost's in-memory files to a FileTailer.
type mockTailSource struct {
	m *MockHost
}

func (s mockTailSource) Size(_ context.Context, path string) (int64, error) {
	data, ok := s.m.File(path)
	if !ok {
		return 0, &TransportError{Op: "tail", Path: path, Err: os.ErrNotExist}
	}
	return int64(len(data)), nil
}

func (s mockTailSource) ReadAt(_ context.Context, path string, offset int64) ([]byte, error) {
	data, ok := s.m.File(path)
	if !ok {
		return nil, &TransportError{Op: "tail", Path: path, Err: os.ErrNotExist}
	}
	if offset >= int64(len(data)) {
		return nil, nil
	}
	return data[offset:], nil
}
