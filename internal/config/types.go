package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
)

// DefaultTimeout is the per-host timeout used when the inventory sets none.
const DefaultTimeout = 30 * time.Second

// Inventory represents the sshfleet inventory file
type Inventory struct {
	Defaults Defaults              `yaml:"defaults,omitempty" toml:"defaults,omitempty"`
	Hosts    map[string]HostConfig `yaml:"hosts" toml:"hosts"`
	Groups   map[string][]string   `yaml:"groups,omitempty" toml:"groups,omitempty"`
}

// Defaults holds settings shared by every host unless overridden
type Defaults struct {
	User       string   `yaml:"user,omitempty" toml:"user,omitempty"`
	Port       int      `yaml:"port,omitempty" toml:"port,omitempty"`
	KeyPath    string   `yaml:"key_path,omitempty" toml:"key_path,omitempty"`
	KnownHosts string   `yaml:"known_hosts,omitempty" toml:"known_hosts,omitempty"`
	Proxy      string   `yaml:"proxy,omitempty" toml:"proxy,omitempty"`
	BatchSize  int      `yaml:"batch_size,omitempty" toml:"batch_size,omitempty"`
	Timeout    Duration `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// HostConfig represents one inventory host
type HostConfig struct {
	Host    string `yaml:"host" toml:"host"`
	User    string `yaml:"user,omitempty" toml:"user,omitempty"`
	Port    int    `yaml:"port,omitempty" toml:"port,omitempty"`
	KeyPath string `yaml:"key_path,omitempty" toml:"key_path,omitempty"`
	Proxy   string `yaml:"proxy,omitempty" toml:"proxy,omitempty"`
}

// Target is a host with the inventory defaults applied
type Target struct {
	Name       string
	Host       string
	User       string
	Port       int
	KeyPath    string
	KnownHosts string
	Proxy      string
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// DefaultInventory returns an empty inventory with the built-in defaults
func DefaultInventory() *Inventory {
	return &Inventory{
		Defaults: Defaults{
			User:      constants.DefaultUser,
			Port:      constants.DefaultPort,
			BatchSize: constants.DefaultBatchSize,
			Timeout:   Duration(DefaultTimeout),
		},
		Hosts:  make(map[string]HostConfig),
		Groups: make(map[string][]string),
	}
}
