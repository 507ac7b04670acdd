package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the configuration directory name
	ConfigDir = "sshfleet"
	// InventoryFile is the default inventory filename
	InventoryFile = "inventory.yaml"
)

// AllHosts selects every host of the inventory
const AllHosts = "all"

// GetInventoryPath returns the path to the default inventory file
func GetInventoryPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, ConfigDir, InventoryFile), nil
}

// isTOML reports whether path is decoded as TOML. Anything else is YAML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadInventory loads and validates the inventory at path. An empty path
// means the default location; a missing default inventory yields an empty
// one.
func LoadInventory(path string) (*Inventory, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = GetInventoryPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // Path is chosen by the user.
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return DefaultInventory(), nil
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("inventory file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	inv := DefaultInventory()
	if isTOML(path) {
		if _, err := toml.Decode(string(data), inv); err != nil {
			return nil, fmt.Errorf("failed to parse inventory: %w", err)
		}
	} else if err := yaml.Unmarshal(data, inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	inv.applyDefaults()

	if errs := ValidateInventory(inv); errs.HasErrors() {
		return nil, errs
	}
	return inv, nil
}

// SaveInventory writes the inventory to path, or to the default location
// when path is empty.
func SaveInventory(inv *Inventory, path string) error {
	if path == "" {
		var err error
		if path, err = GetInventoryPath(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(inv)
		data = []byte(b.String())
	} else {
		data, err = yaml.Marshal(inv)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal inventory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}
	return nil
}

// applyDefaults fills settings an inventory file left out.
func (inv *Inventory) applyDefaults() {
	def := DefaultInventory().Defaults
	if inv.Defaults.User == "" {
		inv.Defaults.User = def.User
	}
	if inv.Defaults.Port == 0 {
		inv.Defaults.Port = def.Port
	}
	if inv.Defaults.BatchSize == 0 {
		inv.Defaults.BatchSize = def.BatchSize
	}
	if inv.Hosts == nil {
		inv.Hosts = make(map[string]HostConfig)
	}
	if inv.Groups == nil {
		inv.Groups = make(map[string][]string)
	}
}

// GetHost retrieves a host by name
func (inv *Inventory) GetHost(name string) (*HostConfig, error) {
	host, ok := inv.Hosts[name]
	if !ok {
		return nil, fmt.Errorf("host '%s' not found", name)
	}
	return &host, nil
}

// AddHost adds a new host to the inventory
func (inv *Inventory) AddHost(name string, host HostConfig) error {
	if _, exists := inv.Hosts[name]; exists {
		return fmt.Errorf("host '%s' already exists", name)
	}
	if _, exists := inv.Groups[name]; exists {
		return fmt.Errorf("'%s' is already a group name", name)
	}
	if inv.Hosts == nil {
		inv.Hosts = make(map[string]HostConfig)
	}
	inv.Hosts[name] = host
	return nil
}

// RemoveHost removes a host and its group memberships
func (inv *Inventory) RemoveHost(name string) error {
	if _, exists := inv.Hosts[name]; !exists {
		return fmt.Errorf("host '%s' not found", name)
	}

	delete(inv.Hosts, name)
	for group, members := range inv.Groups {
		inv.Groups[group] = slices.DeleteFunc(members, func(m string) bool { return m == name })
	}
	return nil
}

// ListHosts returns all host names, sorted
func (inv *Inventory) ListHosts() []string {
	names := make([]string, 0, len(inv.Hosts))
	for name := range inv.Hosts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Select resolves host and group names into targets. No selector, or "all",
// selects every host. Targets come out sorted by name without duplicates.
func (inv *Inventory) Select(selectors ...string) ([]Target, error) {
	if len(selectors) == 0 || slices.Contains(selectors, AllHosts) {
		selectors = inv.ListHosts()
	}

	picked := make(map[string]bool)
	for _, sel := range selectors {
		if _, ok := inv.Hosts[sel]; ok {
			picked[sel] = true
			continue
		}
		members, ok := inv.Groups[sel]
		if !ok {
			return nil, fmt.Errorf("no host or group named '%s'", sel)
		}
		for _, m := range members {
			picked[m] = true
		}
	}

	names := make([]string, 0, len(picked))
	for name := range picked {
		names = append(names, name)
	}
	slices.Sort(names)

	targets := make([]Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, inv.target(name))
	}
	return targets, nil
}

func (inv *Inventory) target(name string) Target {
	h := inv.Hosts[name]
	t := Target{
		Name:       name,
		Host:       h.Host,
		User:       h.User,
		Port:       h.Port,
		KeyPath:    h.KeyPath,
		KnownHosts: inv.Defaults.KnownHosts,
		Proxy:      h.Proxy,
	}
	if t.User == "" {
		t.User = inv.Defaults.User
	}
	if t.Port == 0 {
		t.Port = inv.Defaults.Port
	}
	if t.KeyPath == "" {
		t.KeyPath = inv.Defaults.KeyPath
	}
	if t.Proxy == "" {
		t.Proxy = inv.Defaults.Proxy
	}
	return t
}
