package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <selector> <remote-path>",
	Short: "Follow a file on hosts",
	Long: `Follows a remote file on every selected host and prints new lines
prefixed with the host name, until interrupted or --duration elapses.
Only lines written after the command started are shown.

Example:
  sshfleet tail web /var/log/nginx/access.log
  sshfleet tail all /var/log/syslog --interval 5s --duration 1m`,
	Args: selectorArgs(1),
	RunE: runTail,
}

var (
	tailInterval time.Duration
	tailDuration time.Duration
)

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().DurationVar(&tailInterval, "interval", time.Second, "Polling interval")
	tailCmd.Flags().DurationVar(&tailDuration, "duration", 0, "Stop after this long (default: until interrupted)")
}

func runTail(cmd *cobra.Command, args []string) error {
	selector, rest := splitSelector(args)
	remote := rest[0]
	if tailInterval <= 0 {
		return fmt.Errorf("invalid --interval value: must be positive")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if tailDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tailDuration)
		defer cancel()
	}

	fleet, err := openFleet(ctx, selector)
	if err != nil {
		return err
	}
	defer fleet.Close()

	tailer, err := fleet.Tail(ctx, remote)
	if err != nil {
		return err
	}
	PrintInfo("Following %s on %d host(s)...", remote, len(tailer.Hosts()))

	// printed counts the bytes shown per host so Close only adds the rest.
	printed := make(map[string]int)
	ticker := time.NewTicker(tailInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := tailer.Close(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			contents := tailer.Contents()
			for _, host := range tailer.Hosts() {
				c := contents[host]
				if strings.HasPrefix(c, "Error: ") || len(c) <= printed[host] {
					continue
				}
				fmt.Fprint(stdout, prefixLines(fleet.Name(host), c[printed[host]:]))
			}
			return nil
		case <-ticker.C:
			deltas, err := tailer.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return err
			}
			printDeltas(fleet, tailer.Hosts(), deltas, printed)
		}
	}
}

// printDeltas prints what each host appended, in host order.
func printDeltas(fleet *Fleet, hosts []string, deltas map[string]string, printed map[string]int) {
	for _, host := range hosts {
		delta := deltas[host]
		if strings.HasPrefix(delta, "Error: ") {
			PrintWarning("%s: %s", fleet.Name(host), strings.TrimPrefix(delta, "Error: "))
			continue
		}
		fmt.Fprint(stdout, prefixLines(fleet.Name(host), delta))
		printed[host] += len(delta)
	}
}
