package multi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yoanbernabeu/sshfleet/internal/constants"
	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

// ResourceError aborts a whole fan-out call when the process ran out of file
// descriptors.
type ResourceError struct {
	BatchSize int
	Err       error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("too many open files: try reducing the batch size (current: %d) or increasing ulimit -n", e.BatchSize)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

var errNoResult = errors.New("host returned no result")

// fanOut calls fn for every index in [0, n) with at most limit calls in
// flight. A new call starts as soon as one finishes. Per-host failures are
// recorded by fn; an error returned by fn stops calls not yet started.
func fanOut(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// target is one host taking part in a fan-out call, with its per-host input.
type target struct {
	addr string
	host ssh.Host
	arg  string
	data []byte
}

type hostOp func(ctx context.Context, t target) (*ssh.Result, error)

// dispatch runs op on every target and folds the outcomes into a Result.
// label names the operation in timeout messages.
func (m *MultiConnection) dispatch(ctx context.Context, name, label string, targets []target, timeout time.Duration, op hostOp) (*Result, error) {
	start := time.Now()
	results := make([]*ssh.Result, len(targets))

	err := fanOut(ctx, m.batchSize, len(targets), func(ctx context.Context, i int) error {
		t := targets[i]
		hctx, cancel := withTimeout(ctx, timeout)
		defer cancel()

		res, err := op(hctx, t)
		if err == nil && res == nil {
			err = errNoResult
		}
		if err == nil {
			results[i] = res
			return nil
		}
		if isFDExhaustion(err) {
			return &ResourceError{BatchSize: m.batchSize, Err: err}
		}

		results[i] = ssh.SentinelResult(failureMessage(label, timeout, err))
		m.log.Debug().Str("host", t.addr).Str("op", name).Err(err).Msg("host failed")
		return nil
	})
	if err != nil {
		m.log.Error().Str("op", name).Err(err).Msg("fan-out aborted")
		return nil, err
	}

	addrs := make([]string, len(targets))
	for i, t := range targets {
		addrs[i] = t.addr
	}
	result := NewResult(addrs, results)

	failed := 0
	if f := result.Failed(); f != nil {
		failed = f.Len()
	}
	m.log.Info().
		Str("op", name).
		Int("hosts", result.Len()).
		Int("failed", failed).
		Dur("took", time.Since(start).Round(time.Millisecond)).
		Msg("fan-out finished")
	return result, nil
}

// failureMessage describes a per-host failure. A timeout is reported against
// the per-host limit rather than the time actually spent.
func failureMessage(label string, timeout time.Duration, err error) string {
	if timeout > 0 && ssh.IsTimeout(err) {
		return fmt.Sprintf("%s timed out after %s", label, formatTimeout(timeout))
	}
	return err.Error()
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// formatTimeout renders whole seconds as "N seconds" and anything else as a
// Go duration.
func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int64(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}

func isFDExhaustion(err error) bool {
	if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "too many open files")
}

// lookup finds the entry for addr in a map keyed by host:port or by bare
// host.
func lookup[V any](m map[string]V, addr string) (V, bool) {
	if v, ok := m[addr]; ok {
		return v, true
	}
	host, _ := constants.SplitHostKey(addr, constants.DefaultPort)
	v, ok := m[host]
	return v, ok
}
