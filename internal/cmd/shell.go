package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshfleet/internal/config"
	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

var shellCmd = &cobra.Command{
	Use:   "shell <host> <script-file>",
	Short: "Feed a script to an interactive shell on one host",
	Long: `Starts a login shell on one inventory host, sends the script line by
line, closes the shell and prints the transcript and exit status. Use
'-' to read the script from stdin.

Example:
  sshfleet shell web1 ./maintenance.sh
  echo 'cd /srv && git pull' | sshfleet shell web1 - --pty`,
	Args: cobra.ExactArgs(2),
	RunE: runShell,
}

var shellPTY bool

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().BoolVar(&shellPTY, "pty", false, "Request a terminal (stdout and stderr are merged)")
}

// connectHost connects to a single inventory host.
func connectHost(name string) (*ssh.Connection, error) {
	inv, err := config.LoadInventory(inventoryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if _, err := inv.GetHost(name); err != nil {
		return nil, err
	}
	targets, err := inv.Select(name)
	if err != nil {
		return nil, err
	}
	pw, err := password()
	if err != nil {
		return nil, err
	}

	s := fleetSettings(inv)
	opts := append(targetOptions(targets[0], pw), ssh.WithTimeout(s.timeout), ssh.WithLogger(newLogger()))
	conn := ssh.NewConnection(targets[0].Host, opts...)
	if err := conn.Connect(0); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	return conn, nil
}

func readScript(path string) ([]string, error) {
	f := os.Stdin
	if path != "-" {
		var err error
		f, err = os.Open(path) //nolint:gosec // Path is chosen by the user.
		if err != nil {
			return nil, fmt.Errorf("failed to open script: %w", err)
		}
		defer f.Close()
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return lines, nil
}

func runShell(cmd *cobra.Command, args []string) error {
	name := args[0]
	lines, err := readScript(args[1])
	if err != nil {
		return err
	}

	conn, err := connectHost(name)
	if err != nil {
		return err
	}
	defer conn.Close()

	sh, err := conn.Shell(shellPTY)
	if err != nil {
		return err
	}
	for _, line := range lines {
		PrintVerboseCommand(line)
		if err := sh.Send(line); err != nil {
			_ = sh.Close(context.WithoutCancel(cmd.Context()))
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), constants.ShellCloseWait)
	defer cancel()
	closeErr := sh.Close(ctx)

	res := sh.Result()
	writeBlock(res.Stdout)
	if res.Stderr != "" {
		fmt.Fprint(stderr, res.Stderr)
		if !strings.HasSuffix(res.Stderr, "\n") {
			fmt.Fprintln(stderr)
		}
	}
	if closeErr != nil {
		return closeErr
	}
	if !res.Succeeded() {
		return fmt.Errorf("shell on %s exited with status %d", name, res.Status)
	}
	return nil
}
