package cmd

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshfleet/internal/config"
	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Manage the inventory",
	Long:  `Commands to add, list, and remove inventory hosts.`,
}

var hostsAddCmd = &cobra.Command{
	Use:   "add <name> <[user@]host[:port]>",
	Short: "Add a host to the inventory",
	Long: `Adds a host to the inventory and tests the SSH connection. When the
connection fails and no key was given, the default keys in ~/.ssh are
tried, interactively when stdin is a terminal.

Example:
  sshfleet hosts add web1 deploy@10.0.0.1
  sshfleet hosts add db1 db.internal:2222 --group db --key ~/.ssh/db`,
	Args: cobra.ExactArgs(2),
	RunE: runHostsAdd,
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List inventory hosts and groups",
	Args:  cobra.NoArgs,
	RunE:  runHostsList,
}

var hostsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a host from the inventory",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostsRemove,
}

var (
	hostGroups  []string
	skipSSHTest bool
)

func init() {
	rootCmd.AddCommand(hostsCmd)
	hostsCmd.AddCommand(hostsAddCmd)
	hostsCmd.AddCommand(hostsListCmd)
	hostsCmd.AddCommand(hostsRemoveCmd)

	hostsAddCmd.Flags().StringSliceVarP(&hostGroups, "group", "g", nil, "Groups to add the host to")
	hostsAddCmd.Flags().BoolVar(&skipSSHTest, "skip-test", false, "Skip SSH connection test")
}

// parseHostSpec splits [user@]host[:port]. Missing parts are left zero.
func parseHostSpec(spec string) (user, host string, port int, err error) {
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		user, spec = spec[:i], spec[i+1:]
	}
	host, port = constants.SplitHostKey(spec, 0)
	if host == "" {
		return "", "", 0, fmt.Errorf("invalid host format, use [user@]host[:port]")
	}
	return user, host, port, nil
}

func runHostsAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	user, host, port, err := parseHostSpec(args[1])
	if err != nil {
		return err
	}
	if userFlag != "" {
		user = userFlag
	}
	if portFlag > 0 {
		port = portFlag
	}

	inv, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	hostCfg := config.HostConfig{Host: host, User: user, Port: port, KeyPath: keyFlag}
	if errors := config.ValidateHostConfig(name, &hostCfg); errors.HasErrors() {
		return fmt.Errorf("invalid host configuration: %w", errors)
	}
	if err := inv.AddHost(name, hostCfg); err != nil {
		return err
	}
	for _, group := range hostGroups {
		inv.Groups[group] = append(inv.Groups[group], name)
	}
	if errors := config.ValidateInventory(inv); errors.HasErrors() {
		return fmt.Errorf("invalid inventory: %w", errors)
	}

	if !skipSSHTest {
		if err := testAndConfigureSSH(cmd, inv, name); err != nil {
			PrintWarning("SSH connection could not be established: %v", err)
		}
	}

	if err := config.SaveInventory(inv, inventoryFile); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}

	target, _ := inv.Select(name)
	PrintSuccess("Added host '%s' (%s@%s:%d)", name, target[0].User, host, target[0].Port)
	return nil
}

// testAndConfigureSSH tests the connection to name and, when that fails and
// no key is configured, looks for a default key that works.
func testAndConfigureSSH(cmd *cobra.Command, inv *config.Inventory, name string) error {
	PrintInfo("Testing SSH connection...")

	targets, err := inv.Select(name)
	if err != nil {
		return err
	}
	target := targets[0]
	pw, err := password()
	if err != nil {
		return err
	}

	firstErr := tryConnect(target, pw)
	if firstErr == nil {
		PrintSuccess("SSH connection successful")
		return nil
	}
	if target.KeyPath != "" {
		return firstErr
	}

	PrintWarning("Connection failed: %v", firstErr)

	keys, err := ssh.DiscoverSSHKeys("")
	if err != nil {
		return fmt.Errorf("failed to discover SSH keys: %w", err)
	}
	var available []ssh.SSHKeyInfo
	for _, key := range keys {
		if key.IsEncrypted {
			PrintVerbose("Skipping encrypted key: %s", key.Name)
			continue
		}
		available = append(available, key)
	}
	if len(available) == 0 {
		return fmt.Errorf("no SSH keys available to try")
	}

	var working *ssh.SSHKeyInfo
	if IsInteractive() {
		options := make([]string, len(available))
		for i, key := range available {
			options[i] = fmt.Sprintf("%s (%s)", key.Name, key.Type)
		}
		if choice := PromptSelect("Select SSH key to use:", options); choice >= 0 {
			target.KeyPath = available[choice].Path
			if err := tryConnect(target, pw); err != nil {
				return err
			}
			working = &available[choice]
		}
	} else {
		for i, key := range available {
			PrintVerbose("Trying %s...", key.Name)
			target.KeyPath = key.Path
			if tryConnect(target, pw) == nil {
				working = &available[i]
				break
			}
		}
	}
	if working == nil {
		return fmt.Errorf("no working SSH key found")
	}

	h := inv.Hosts[name]
	h.KeyPath = working.Path
	inv.Hosts[name] = h
	PrintSuccess("SSH connection successful with %s", working.Name)
	return nil
}

func tryConnect(target config.Target, pw string) error {
	opts := append(targetOptions(target, pw), ssh.WithLogger(newLogger()))
	conn := ssh.NewConnection(target.Host, opts...)
	defer conn.Close()
	return conn.Connect(10 * time.Second)
}

func runHostsList(cmd *cobra.Command, args []string) error {
	inv, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	names := inv.ListHosts()
	if len(names) == 0 {
		PrintInfo("No hosts configured. Use 'sshfleet hosts add' to add one.")
		return nil
	}

	targets, err := inv.Select(names...)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tUSER\tKEY")
	for _, t := range targets {
		key := t.KeyPath
		if key == "" {
			key = "-"
		}
		fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\n", t.Name, t.Host, t.Port, t.User, key)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(inv.Groups) > 0 {
		fmt.Fprintln(stdout)
		groups := make([]string, 0, len(inv.Groups))
		for g := range inv.Groups {
			groups = append(groups, g)
		}
		slices.Sort(groups)
		for _, g := range groups {
			fmt.Fprintf(stdout, "@%s: %s\n", g, strings.Join(inv.Groups[g], ", "))
		}
	}
	return nil
}

func runHostsRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	inv, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}
	if err := inv.RemoveHost(name); err != nil {
		return err
	}
	if err := config.SaveInventory(inv, inventoryFile); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}

	PrintSuccess("Removed host '%s'", name)
	return nil
}
