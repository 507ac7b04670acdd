package cmd

import (
	"fmt"
	"strings"

	"github.com/yoanbernabeu/sshfleet/internal/multi"
)

// printResult prints every host's outcome in host order, then a summary.
// It returns an error when any host failed so the process exits non-zero.
func printResult(fleet *Fleet, res *multi.Result) error {
	for host, r := range res.All() {
		label := fleet.Name(host)
		if label != host {
			label = fmt.Sprintf("%s (%s)", label, host)
		}
		fmt.Fprintf(stdout, "=== %s [exit %d]\n", label, r.Status)
		writeBlock(r.Stdout)
		writeBlock(r.Stderr)
	}

	summary := res.String()
	if failed := res.Failed(); failed != nil {
		PrintWarning("%s", summary)
		return res.RaiseIfAnyFailed()
	}
	PrintSuccess("%s", summary)
	return nil
}

// writeBlock prints s, terminated by a newline.
func writeBlock(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(stdout, s)
	if !strings.HasSuffix(s, "\n") {
		fmt.Fprintln(stdout)
	}
}

// prefixLines prefixes every line of s with "name | ".
func prefixLines(name, s string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(name)
		b.WriteString(" | ")
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
