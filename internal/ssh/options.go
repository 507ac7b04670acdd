package ssh

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// Options holds connection settings. It is filled by Option functions.
type Options struct {
	Port       int
	User       string
	Password   string
	KeyPath    string
	Passphrase string
	Timeout    time.Duration
	KnownHosts string
	Proxy      string

	// KeyDir is scanned during default key discovery. Empty means ~/.ssh.
	KeyDir string
	// AgentSocket overrides SSH_AUTH_SOCK. It is only ever read.
	AgentSocket string

	HostKeyCallback ssh.HostKeyCallback
	Logger          zerolog.Logger
}

// Option configures a Connection or AsyncConnection.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Port:   constants.DefaultPort,
		User:   constants.DefaultUser,
		Logger: zerolog.Nop(),
	}
}

// NewOptions applies opts on top of the defaults.
func NewOptions(opts ...Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Port == 0 {
		o.Port = constants.DefaultPort
	}
	if o.User == "" {
		o.User = constants.DefaultUser
	}
	return o
}

// WithPort sets the SSH port.
func WithPort(port int) Option {
	return func(o *Options) { o.Port = port }
}

// WithUser sets the login user.
func WithUser(user string) Option {
	return func(o *Options) { o.User = user }
}

// WithPassword sets the password used for password authentication. It also
// unlocks an encrypted private key when no passphrase is given.
func WithPassword(password string) Option {
	return func(o *Options) { o.Password = password }
}

// WithKeyPath sets an explicit private key file.
func WithKeyPath(path string) Option {
	return func(o *Options) { o.KeyPath = path }
}

// WithPassphrase sets the passphrase of the explicit private key.
func WithPassphrase(passphrase string) Option {
	return func(o *Options) { o.Passphrase = passphrase }
}

// WithTimeout sets the default timeout for connecting and for operations
// called without an explicit timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithKnownHosts enables host key verification against a known_hosts file,
// adding unknown hosts on first use.
func WithKnownHosts(path string) Option {
	return func(o *Options) { o.KnownHosts = path }
}

// WithHostKeyCallback sets a custom host key verifier. It wins over
// WithKnownHosts.
func WithHostKeyCallback(cb ssh.HostKeyCallback) Option {
	return func(o *Options) { o.HostKeyCallback = cb }
}

// WithProxy dials the host through a SOCKS5 proxy, given as host:port or
// socks5://[user:pass@]host:port.
func WithProxy(proxy string) Option {
	return func(o *Options) { o.Proxy = proxy }
}

// WithKeyDir sets the directory scanned for default keys.
func WithKeyDir(dir string) Option {
	return func(o *Options) { o.KeyDir = dir }
}

// WithAgentSocket sets the ssh-agent socket instead of reading SSH_AUTH_SOCK.
func WithAgentSocket(socket string) Option {
	return func(o *Options) { o.AgentSocket = socket }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
