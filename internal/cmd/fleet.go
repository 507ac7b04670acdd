package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshfleet/internal/config"
	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/multi"
	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

// Fleet holds a connected MultiConnection and the display name of each host.
type Fleet struct {
	*multi.MultiConnection
	names map[string]string
}

// Name returns the inventory name of addr, or addr for ad-hoc hosts.
func (f *Fleet) Name(addr string) string {
	if name, ok := f.names[addr]; ok {
		return name
	}
	return addr
}

// splitSelector separates the host selector from the remaining arguments.
// With --hosts there is no selector argument.
func splitSelector(args []string) (string, []string) {
	if len(adHocHosts) > 0 || len(args) == 0 {
		return "", args
	}
	return args[0], args[1:]
}

// selectorArgs validates that a command got n arguments besides the selector.
func selectorArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		_, rest := splitSelector(args)
		if len(adHocHosts) == 0 && len(args) == 0 {
			return fmt.Errorf("missing host selector (a host, a group, or 'all')")
		}
		if len(rest) < n {
			return fmt.Errorf("expected at least %d argument(s) after the host selector, got %d", n, len(rest))
		}
		return nil
	}
}

// password returns the SSH password from the environment or a prompt.
func password() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	if !askPass {
		return "", nil
	}
	if !IsInteractive() {
		return "", fmt.Errorf("--ask-pass needs a terminal (set %s instead)", EnvPassword)
	}
	return PromptPassword("SSH password: ")
}

// settings holds the fleet-wide values after flags override the inventory.
type settings struct {
	batchSize int
	timeout   time.Duration
}

func fleetSettings(inv *config.Inventory) settings {
	s := settings{batchSize: inv.Defaults.BatchSize, timeout: inv.Defaults.Timeout.Std()}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if timeoutFlag > 0 {
		s.timeout = timeoutFlag
	}
	if s.batchSize <= 0 {
		s.batchSize = constants.DefaultBatchSize
	}
	if s.timeout <= 0 {
		s.timeout = config.DefaultTimeout
	}
	return s
}

// targetOptions builds the connection options for one inventory target.
func targetOptions(t config.Target, pw string) []ssh.Option {
	if userFlag != "" {
		t.User = userFlag
	}
	if portFlag > 0 {
		t.Port = portFlag
	}
	if keyFlag != "" {
		t.KeyPath = keyFlag
	}
	if knownHostsFlag != "" {
		t.KnownHosts = knownHostsFlag
	}
	if proxyFlag != "" {
		t.Proxy = proxyFlag
	}

	opts := []ssh.Option{ssh.WithUser(t.User), ssh.WithPort(t.Port)}
	if t.KeyPath != "" {
		opts = append(opts, ssh.WithKeyPath(t.KeyPath))
	}
	if pw != "" {
		opts = append(opts, ssh.WithPassword(pw))
	}
	if t.KnownHosts != "" {
		opts = append(opts, ssh.WithKnownHosts(t.KnownHosts))
	}
	if t.Proxy != "" {
		opts = append(opts, ssh.WithProxy(t.Proxy))
	}
	return opts
}

// buildFleet resolves the selector into a MultiConnection without connecting.
func buildFleet(selector string) (*Fleet, error) {
	inv, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	pw, err := password()
	if err != nil {
		return nil, err
	}

	s := fleetSettings(inv)
	log := newLogger()
	multiOpts := []multi.Option{
		multi.WithBatchSize(s.batchSize),
		multi.WithTimeout(s.timeout),
		multi.WithLogger(log),
	}

	if len(adHocHosts) > 0 {
		shared := targetOptions(config.Target{
			User:       inv.Defaults.User,
			Port:       inv.Defaults.Port,
			KeyPath:    inv.Defaults.KeyPath,
			KnownHosts: inv.Defaults.KnownHosts,
			Proxy:      inv.Defaults.Proxy,
		}, pw)
		mc, err := multi.FromSharedAuth(adHocHosts, append(multiOpts, multi.WithSSHOptions(shared...))...)
		if err != nil {
			return nil, err
		}
		return &Fleet{MultiConnection: mc}, nil
	}

	targets, err := inv.Select(strings.Split(selector, ",")...)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no hosts selected (add some with 'sshfleet hosts add')")
	}

	hosts := make([]ssh.Host, len(targets))
	names := make(map[string]string, len(targets))
	for i, t := range targets {
		opts := append(targetOptions(t, pw), ssh.WithTimeout(s.timeout), ssh.WithLogger(log))
		conn := ssh.NewAsyncConnection(t.Host, opts...)
		hosts[i] = conn
		names[conn.Addr()] = t.Name
	}

	mc, err := multi.New(hosts, multiOpts...)
	if err != nil {
		return nil, err
	}
	return &Fleet{MultiConnection: mc, names: names}, nil
}

// openFleet builds the fleet and connects it. Unreachable hosts are reported
// and pruned; it fails only when no host is left.
func openFleet(ctx context.Context, selector string) (*Fleet, error) {
	fleet, err := buildFleet(selector)
	if err != nil {
		return nil, err
	}

	PrintVerbose("Connecting to %d host(s)...", len(fleet.Hosts()))
	res, err := fleet.Connect(ctx, true, 0)
	if err != nil {
		_ = fleet.Close()
		return nil, err
	}
	if failed := res.Failed(); failed != nil {
		for host, r := range failed.All() {
			PrintWarning("%s unreachable: %s", fleet.Name(host), r.Stderr)
		}
	}
	if len(fleet.Hosts()) == 0 {
		_ = fleet.Close()
		return nil, fmt.Errorf("no reachable hosts")
	}
	return fleet, nil
}
