package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var copyCmd = &cobra.Command{
	Use:   "copy <src-host> <remote-path> <dst-host> [dst-path]",
	Short: "Copy a file between two hosts",
	Long: `Streams a file from one inventory host to another over SFTP. The file
never touches the local disk. The destination path defaults to the
source path.

Example:
  sshfleet copy db1 /var/backups/db.dump db2 /var/restore/db.dump`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runCopy,
}

func init() {
	rootCmd.AddCommand(copyCmd)
}

func runCopy(cmd *cobra.Command, args []string) error {
	srcName, remote, dstName := args[0], args[1], args[2]
	dstPath := remote
	if len(args) == 4 {
		dstPath = args[3]
	}

	src, err := connectHost(srcName)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := connectHost(dstName)
	if err != nil {
		return err
	}
	defer dst.Close()

	PrintInfo("Copying %s:%s to %s:%s...", srcName, remote, dstName, dstPath)
	if err := src.RemoteCopy(remote, dst, dstPath); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	PrintSuccess("Copied %s to %s", remote, dstName)
	return nil
}
