// Package sshtest runs an in-process SSH server for tests. It serves exec and
// shell sessions through the local sh, an SFTP subsystem and the scp
// protocol, so clients can be exercised without an external sshd.
package sshtest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Server is an SSH server bound to a loopback port.
type Server struct {
	Host string
	Port int

	config   *ssh.ServerConfig
	listener net.Listener
	hostKey  ssh.Signer

	users      map[string]string
	authorized map[string][]ssh.PublicKey
	handshake  time.Duration
	stalled    bool

	mu       sync.Mutex
	attempts []string
	closed   bool
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPassword accepts user with password.
func WithPassword(user, password string) Option {
	return func(s *Server) { s.users[user] = password }
}

// WithAuthorizedKey accepts user with key.
func WithAuthorizedKey(user string, key ssh.PublicKey) Option {
	return func(s *Server) { s.authorized[user] = append(s.authorized[user], key) }
}

// WithHandshakeDelay stalls every connection before the SSH handshake.
func WithHandshakeDelay(d time.Duration) Option {
	return func(s *Server) { s.handshake = d }
}

// WithStalledChannels completes the handshake but never answers a channel
// open, like a host that hung after login.
func WithStalledChannels() Option {
	return func(s *Server) { s.stalled = true }
}

// NewServer starts a server and stops it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		Host:       "127.0.0.1",
		users:      make(map[string]string),
		authorized: make(map[string][]ssh.PublicKey),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	hostKey, err := generateHostKey()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	s.hostKey = hostKey

	s.config = &ssh.ServerConfig{
		PasswordCallback:  s.checkPassword,
		PublicKeyCallback: s.checkPublicKey,
	}
	s.config.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s.listener = ln
	s.Port = ln.Addr().(*net.TCPAddr).Port

	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey.PublicKey()
}

// AuthAttempts returns the authentication methods tried by clients, in order,
// as "password" or "publickey:<fingerprint>".
func (s *Server) AuthAttempts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.attempts...)
}

// Close stops the server and drops live connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) checkPassword(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	s.mu.Lock()
	s.attempts = append(s.attempts, "password")
	s.mu.Unlock()

	if want, ok := s.users[meta.User()]; ok && want == string(password) {
		return &ssh.Permissions{}, nil
	}
	return nil, errors.New("invalid credentials")
}

func (s *Server) checkPublicKey(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	s.mu.Lock()
	s.attempts = append(s.attempts, "publickey:"+ssh.FingerprintSHA256(key))
	s.mu.Unlock()

	for _, k := range s.authorized[meta.User()] {
		if string(k.Marshal()) == string(key.Marshal()) {
			return &ssh.Permissions{}, nil
		}
	}
	return nil, errors.New("unknown key")
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if s.handshake > 0 {
		time.Sleep(s.handshake)
	}

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	if s.stalled {
		for range chans {
		}
		return
	}

	var wg sync.WaitGroup
	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleSession(newChan, sshConn.User())
		}()
	}
	wg.Wait()
}

// handleSession serves one session channel until the client closes it.
// Commands see the login user in USER and LOGNAME.
func handleSession(newChan ssh.NewChannel, user string) {
	ch, reqs, err := newChan.Accept()
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		pty     bool
		started bool
	)
	for req := range reqs {
		switch req.Type {
		case "pty-req":
			pty = true
			_ = req.Reply(true, nil)
		case "env":
			_ = req.Reply(true, nil)
		case "exec", "shell":
			var payload struct{ Command string }
			if req.Type == "exec" {
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					_ = req.Reply(false, nil)
					continue
				}
			}
			if started {
				_ = req.Reply(false, nil)
				continue
			}
			started = true
			_ = req.Reply(true, nil)
			go run(ctx, ch, user, payload.Command, pty)
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" || started {
				_ = req.Reply(false, nil)
				continue
			}
			started = true
			_ = req.Reply(true, nil)
			go serveSFTP(ch)
		case "signal":
			cancel()
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// run executes command, or an interactive sh when command is empty, and
// reports its exit status.
func run(ctx context.Context, ch ssh.Channel, user, command string, pty bool) {
	defer ch.Close()

	var status int
	switch {
	case strings.HasPrefix(command, "scp -t "):
		status = scpSink(ch, unquote(strings.TrimPrefix(command, "scp -t ")))
	case strings.HasPrefix(command, "scp -f "):
		status = scpSource(ch, unquote(strings.TrimPrefix(command, "scp -f ")))
	default:
		status = runShell(ctx, ch, user, command, pty)
	}

	_ = ch.CloseWrite()
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
}

func runShell(ctx context.Context, ch ssh.Channel, user, command string, pty bool) int {
	var cmd *exec.Cmd
	if command == "" {
		cmd = exec.CommandContext(ctx, "sh")
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	cmd.Env = append(os.Environ(), "USER="+user, "LOGNAME="+user)
	cmd.WaitDelay = 200 * time.Millisecond
	cmd.Stdout = ch
	if pty {
		cmd.Stderr = ch
	} else {
		cmd.Stderr = ch.Stderr()
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		fmt.Fprintf(ch.Stderr(), "sh: %v\n", err)
		return 127
	}
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(ch.Stderr(), "sh: %v\n", err)
		return 127
	}
	go func() {
		_, _ = io.Copy(stdin, ch)
		_ = stdin.Close()
	}()

	err = cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode()
	}
	return 137
}

func serveSFTP(ch ssh.Channel) {
	defer ch.Close()
	srv, err := sftp.NewServer(ch)
	if err != nil {
		return
	}
	if err := srv.Serve(); err == io.EOF {
		_ = srv.Close()
	}
}

// unquote reverses POSIX single quoting as produced by a shell escaper.
func unquote(s string) string {
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
		case c == '\\' && !inQuote && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func generateHostKey() (ssh.Signer, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}
