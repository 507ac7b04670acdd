package cmd

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <selector>",
	Short: "Connect to hosts and report reachability",
	Long: `Connects to every selected host and reports which ones are reachable
and authenticate. The command fails if any host is unreachable.

Example:
  sshfleet check all
  sshfleet check web --timeout 5s`,
	Args: selectorArgs(0),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	selector, _ := splitSelector(args)

	fleet, err := buildFleet(selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	PrintInfo("Checking %d host(s)...", len(fleet.Hosts()))
	res, err := fleet.Connect(cmd.Context(), false, 0)
	if err != nil {
		return err
	}

	for host, r := range res.All() {
		if r.Succeeded() {
			PrintSuccess("%s reachable", fleet.Name(host))
		} else {
			PrintError("%s: %s", fleet.Name(host), r.Stderr)
		}
	}
	return res.RaiseIfAnyFailed()
}
