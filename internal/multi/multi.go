// Package multi fans SSH operations out to a fleet of hosts with bounded
// concurrency. A failure on one host never affects the others; every call
// returns one outcome per host.
package multi

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/security"
	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

// Option configures a MultiConnection.
type Option func(*settings)

type settings struct {
	batchSize int
	timeout   time.Duration
	logger    zerolog.Logger
	sshOpts   []ssh.Option
}

// WithBatchSize caps the number of hosts worked on at once. Defaults to 100.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.batchSize = n }
}

// WithTimeout sets the default per-host timeout. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithSSHOptions sets the connection options FromSharedAuth applies to every
// host.
func WithSSHOptions(opts ...ssh.Option) Option {
	return func(s *settings) { s.sshOpts = append(s.sshOpts, opts...) }
}

// MultiConnection drives one operation across many hosts at a time.
type MultiConnection struct {
	batchSize int
	timeout   time.Duration
	log       zerolog.Logger

	mu    sync.Mutex
	hosts []string
	conns []ssh.Host
}

func buildSettings(opts []Option) (settings, error) {
	s := settings{
		batchSize: constants.DefaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.batchSize <= 0 {
		return s, fmt.Errorf("batch size must be positive, got %d", s.batchSize)
	}
	if s.timeout < 0 {
		return s, fmt.Errorf("timeout must not be negative, got %s", s.timeout)
	}
	return s, nil
}

// New creates a MultiConnection over hosts. Host identities must be unique.
func New(hosts []ssh.Host, opts ...Option) (*MultiConnection, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}
	return newMulti(hosts, s)
}

func newMulti(hosts []ssh.Host, s settings) (*MultiConnection, error) {
	m := &MultiConnection{
		batchSize: s.batchSize,
		timeout:   s.timeout,
		log:       s.logger,
		hosts:     make([]string, 0, len(hosts)),
		conns:     make([]ssh.Host, 0, len(hosts)),
	}
	seen := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		addr := h.Addr()
		if seen[addr] {
			return nil, fmt.Errorf("duplicate host %s", addr)
		}
		seen[addr] = true
		m.hosts = append(m.hosts, addr)
		m.conns = append(m.conns, h)
	}
	return m, nil
}

// FromSharedAuth creates one connection per host, all sharing the options
// given through WithSSHOptions. A host written as host:port keeps its own
// port.
func FromSharedAuth(hosts []string, opts ...Option) (*MultiConnection, error) {
	s, err := buildSettings(opts)
	if err != nil {
		return nil, err
	}

	sshOpts := append([]ssh.Option{}, s.sshOpts...)
	sshOpts = append(sshOpts, ssh.WithLogger(s.logger))
	if s.timeout > 0 {
		sshOpts = append(sshOpts, ssh.WithTimeout(s.timeout))
	}

	conns := make([]ssh.Host, 0, len(hosts))
	for _, h := range hosts {
		name, _ := constants.SplitHostKey(h, constants.DefaultPort)
		if err := security.ValidateHost(name); err != nil {
			return nil, err
		}
		conns = append(conns, ssh.NewAsyncConnection(h, sshOpts...))
	}
	return newMulti(conns, s)
}

// FromConnections drives existing blocking connections.
func FromConnections(conns []*ssh.Connection, opts ...Option) (*MultiConnection, error) {
	hosts := make([]ssh.Host, len(conns))
	for i, c := range conns {
		hosts[i] = ssh.Blocking(c)
	}
	return New(hosts, opts...)
}

// Hosts returns the host identities in declaration order.
func (m *MultiConnection) Hosts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.hosts...)
}

// BatchSize returns the concurrency cap.
func (m *MultiConnection) BatchSize() int {
	return m.batchSize
}

// Timeout returns the default per-host timeout.
func (m *MultiConnection) Timeout() time.Duration {
	return m.timeout
}

func (m *MultiConnection) String() string {
	return fmt.Sprintf("MultiConnection(%d hosts, batch_size=%d)", len(m.Hosts()), m.batchSize)
}

// targets snapshots the current hosts.
func (m *MultiConnection) targets() []target {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := make([]target, len(m.hosts))
	for i, addr := range m.hosts {
		ts[i] = target{addr: addr, host: m.conns[i]}
	}
	return ts
}

func (m *MultiConnection) timeoutOr(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return m.timeout
}

// Connect connects every host. With prune, hosts that failed are closed and
// dropped for good. A zero timeout uses the default.
func (m *MultiConnection) Connect(ctx context.Context, prune bool, timeout time.Duration) (*Result, error) {
	result, err := m.dispatch(ctx, "connect", "Connection", m.targets(), m.timeoutOr(timeout),
		func(ctx context.Context, t target) (*ssh.Result, error) {
			if err := t.host.Connect(ctx); err != nil {
				return nil, err
			}
			return &ssh.Result{}, nil
		})
	if err != nil {
		return nil, err
	}

	if prune {
		if failed := result.Failed(); failed != nil {
			m.prune(failed.Hosts())
		}
	}
	return result, nil
}

func (m *MultiConnection) prune(drop []string) {
	gone := make(map[string]bool, len(drop))
	for _, h := range drop {
		gone[h] = true
	}

	m.mu.Lock()
	hosts := m.hosts[:0:0]
	conns := m.conns[:0:0]
	var closing []ssh.Host
	for i, h := range m.hosts {
		if gone[h] {
			closing = append(closing, m.conns[i])
			continue
		}
		hosts = append(hosts, h)
		conns = append(conns, m.conns[i])
	}
	m.hosts, m.conns = hosts, conns
	m.mu.Unlock()

	for _, c := range closing {
		if err := c.Close(); err != nil {
			m.log.Warn().Str("host", c.Addr()).Err(err).Msg("close pruned host")
		}
	}
	m.log.Info().Strs("hosts", drop).Msg("pruned unreachable hosts")
}

// Execute runs command on every host. A host overrunning the timeout gets
// status -1 and a timeout message; the others are unaffected.
func (m *MultiConnection) Execute(ctx context.Context, command string, timeout time.Duration) (*Result, error) {
	m.log.Debug().Str("command", security.SanitizeCommandForLog(command)).Msg("execute")
	return m.dispatch(ctx, "execute", "Operation", m.targets(), m.timeoutOr(timeout), execOp(command))
}

// ExecuteMap runs a different command per host. Hosts absent from
// commandByHost are skipped and left out of the Result. Keys may be host:port
// or a bare host.
func (m *MultiConnection) ExecuteMap(ctx context.Context, commandByHost map[string]string, timeout time.Duration) (*Result, error) {
	var targets []target
	for _, t := range m.targets() {
		if cmd, ok := lookup(commandByHost, t.addr); ok {
			t.arg = cmd
			targets = append(targets, t)
		}
	}
	return m.dispatch(ctx, "execute_map", "Operation", targets, m.timeoutOr(timeout), execOp(""))
}

// execOp runs command, or the per-target command when command is empty.
func execOp(command string) hostOp {
	return func(ctx context.Context, t target) (*ssh.Result, error) {
		cmd := command
		if cmd == "" {
			cmd = t.arg
		}
		res, err := t.host.Execute(ctx, cmd)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
}

// SFTPWrite uploads a local file to every host.
func (m *MultiConnection) SFTPWrite(ctx context.Context, localPath, remotePath string) (*Result, error) {
	return m.dispatch(ctx, "sftp_write", "Operation", m.targets(), m.timeout,
		func(ctx context.Context, t target) (*ssh.Result, error) {
			if err := t.host.SFTPWrite(ctx, localPath, remotePath); err != nil {
				return nil, err
			}
			return ssh.OKResult(), nil
		})
}

// SFTPWriteData uploads data to remotePath on every host.
func (m *MultiConnection) SFTPWriteData(ctx context.Context, data []byte, remotePath string) (*Result, error) {
	targets := m.targets()
	for i := range targets {
		targets[i].data = data
	}
	return m.dispatch(ctx, "sftp_write_data", "Operation", targets, m.timeout, writeDataOp(remotePath))
}

// SFTPWriteDataMap uploads per-host data to remotePath. Hosts absent from
// dataByHost are skipped.
func (m *MultiConnection) SFTPWriteDataMap(ctx context.Context, dataByHost map[string][]byte, remotePath string) (*Result, error) {
	var targets []target
	for _, t := range m.targets() {
		if data, ok := lookup(dataByHost, t.addr); ok {
			t.data = data
			targets = append(targets, t)
		}
	}
	return m.dispatch(ctx, "sftp_write_data_map", "Operation", targets, m.timeout, writeDataOp(remotePath))
}

func writeDataOp(remotePath string) hostOp {
	return func(ctx context.Context, t target) (*ssh.Result, error) {
		if err := t.host.SFTPWriteData(ctx, t.data, remotePath); err != nil {
			return nil, err
		}
		return ssh.OKResult(), nil
	}
}

// SFTPRead reads remotePath from every host. With an empty localDir the
// contents land in each Stdout; otherwise each file is saved to
// localDir/<host>/<name> and Stdout is "Ok".
func (m *MultiConnection) SFTPRead(ctx context.Context, remotePath, localDir string) (*Result, error) {
	targets := m.targets()
	for i := range targets {
		targets[i].arg = remotePath
	}
	return m.dispatch(ctx, "sftp_read", "Operation", targets, m.timeout, readOp(localDir))
}

// SFTPReadMap reads a different file per host. Hosts absent from pathByHost
// are skipped.
func (m *MultiConnection) SFTPReadMap(ctx context.Context, pathByHost map[string]string) (*Result, error) {
	var targets []target
	for _, t := range m.targets() {
		if p, ok := lookup(pathByHost, t.addr); ok {
			t.arg = p
			targets = append(targets, t)
		}
	}
	return m.dispatch(ctx, "sftp_read_map", "Operation", targets, m.timeout, readOp(""))
}

func readOp(localDir string) hostOp {
	return func(ctx context.Context, t target) (*ssh.Result, error) {
		local := ""
		if localDir != "" {
			local = LocalPath(localDir, t.addr, t.arg)
		}
		content, err := t.host.SFTPRead(ctx, t.arg, local)
		if err != nil {
			return nil, err
		}
		return &ssh.Result{Stdout: content}, nil
	}
}

var hostDirReplacer = strings.NewReplacer(":", "_", "[", "", "]", "")

// LocalPath returns where SFTPRead stores remotePath fetched from addr.
func LocalPath(localDir, addr, remotePath string) string {
	return filepath.Join(localDir, hostDirReplacer.Replace(addr), path.Base(remotePath))
}

// Close closes every connection. Per-host errors are logged, not returned.
func (m *MultiConnection) Close() error {
	targets := m.targets()
	err := fanOut(context.Background(), m.batchSize, len(targets), func(_ context.Context, i int) error {
		if err := targets[i].host.Close(); err != nil {
			m.log.Warn().Str("host", targets[i].addr).Err(err).Msg("close failed")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
