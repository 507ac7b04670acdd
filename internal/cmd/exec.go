package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <selector> <command>",
	Short: "Execute a command on hosts",
	Long: `Executes a command on every selected host, at most --batch-size at a
time, and prints each host's output in inventory order.

The selector is a host name, a group name, a comma-separated list of
them, or 'all'. With --hosts the selector is omitted.

A host exceeding --timeout reports exit -1 and a timeout message; the
other hosts are unaffected. The command fails if any host failed.

Example:
  sshfleet exec all uptime
  sshfleet exec web,db1 'df -h /'
  sshfleet exec --hosts 10.0.0.1,10.0.0.2 -u deploy -- systemctl status nginx`,
	Args: selectorArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	selector, rest := splitSelector(args)
	command := strings.Join(rest, " ")

	fleet, err := openFleet(cmd.Context(), selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	PrintVerboseCommand(command)
	res, err := fleet.Execute(cmd.Context(), command, 0)
	if err != nil {
		return err
	}
	return printResult(fleet, res)
}
