package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoanbernabeu/sshfleet/internal/multi"
)

var putCmd = &cobra.Command{
	Use:   "put <selector> <local-file> <remote-path>",
	Short: "Upload a file to hosts",
	Long: `Uploads a local file to every selected host over SFTP. A remote path
ending in '/' keeps the local file name.

Example:
  sshfleet put web ./nginx.conf /etc/nginx/nginx.conf
  sshfleet put all ./motd /etc/`,
	Args: selectorArgs(2),
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get <selector> <remote-path> [local-dir]",
	Short: "Download a file from hosts",
	Long: `Downloads a remote file from every selected host over SFTP. Each copy
is saved as <local-dir>/<host>/<file name>. The local directory defaults
to the current directory. With --stdout the contents are printed instead.

Example:
  sshfleet get all /etc/os-release ./collected
  sshfleet get db1 /var/log/syslog --stdout`,
	Args: selectorArgs(1),
	RunE: runGet,
}

var getToStdout bool

func init() {
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getToStdout, "stdout", false, "Print the contents instead of saving them")
}

func runPut(cmd *cobra.Command, args []string) error {
	selector, rest := splitSelector(args)
	local, remote := rest[0], rest[1]

	fleet, err := openFleet(cmd.Context(), selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	PrintInfo("Uploading %s to %s on %d host(s)...", local, remote, len(fleet.Hosts()))
	res, err := fleet.SFTPWrite(cmd.Context(), local, remote)
	if err != nil {
		return err
	}
	return printResult(fleet, res)
}

func runGet(cmd *cobra.Command, args []string) error {
	selector, rest := splitSelector(args)
	remote := rest[0]
	localDir := "."
	if len(rest) > 1 {
		localDir = rest[1]
	}
	if getToStdout {
		localDir = ""
	}

	fleet, err := openFleet(cmd.Context(), selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	res, err := fleet.SFTPRead(cmd.Context(), remote, localDir)
	if err != nil {
		return err
	}
	if localDir != "" {
		if ok := res.Succeeded(); ok != nil {
			for _, host := range ok.Hosts() {
				PrintVerbose("%s -> %s", fleet.Name(host), multi.LocalPath(localDir, host, remote))
			}
		}
	}
	if err := printResult(fleet, res); err != nil {
		return err
	}
	if localDir != "" {
		fmt.Fprintf(stdout, "Saved under %s\n", localDir)
	}
	return nil
}
