package multi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

// MultiFileTailer follows one file per host.
type MultiFileTailer struct {
	batchSize int
	timeout   time.Duration
	hosts     []string
	tailers   []*ssh.FileTailer

	mu       sync.Mutex
	contents map[string]string
	closed   bool
}

// Tail opens a tailer on remotePath on every host. If any host fails to open
// it, the tailers already opened are closed and the error is returned.
func (m *MultiConnection) Tail(ctx context.Context, remotePath string) (*MultiFileTailer, error) {
	targets := m.targets()
	for i := range targets {
		targets[i].arg = remotePath
	}
	return m.openTailers(ctx, targets)
}

// TailMap opens a tailer per host on the path mapped to it. Only mapped hosts
// take part.
func (m *MultiConnection) TailMap(ctx context.Context, pathByHost map[string]string) (*MultiFileTailer, error) {
	var targets []target
	for _, t := range m.targets() {
		if p, ok := lookup(pathByHost, t.addr); ok {
			t.arg = p
			targets = append(targets, t)
		}
	}
	return m.openTailers(ctx, targets)
}

func (m *MultiConnection) openTailers(ctx context.Context, targets []target) (*MultiFileTailer, error) {
	mt := &MultiFileTailer{
		batchSize: m.batchSize,
		timeout:   m.timeout,
		hosts:     make([]string, len(targets)),
		tailers:   make([]*ssh.FileTailer, len(targets)),
	}

	err := fanOut(ctx, m.batchSize, len(targets), func(ctx context.Context, i int) error {
		t := targets[i]
		mt.hosts[i] = t.addr
		hctx, cancel := withTimeout(ctx, m.timeout)
		defer cancel()

		tailer, err := t.host.Tail(hctx, t.arg)
		if err != nil {
			if isFDExhaustion(err) {
				return &ResourceError{BatchSize: m.batchSize, Err: err}
			}
			return fmt.Errorf("failed to initialize tailer for %s: %w", t.addr, err)
		}
		mt.tailers[i] = tailer
		return nil
	})
	if err != nil {
		for _, tailer := range mt.tailers {
			if tailer != nil {
				cctx, cancel := withTimeout(context.WithoutCancel(ctx), m.timeout)
				_ = tailer.Close(cctx)
				cancel()
			}
		}
		return nil, err
	}

	m.log.Debug().Int("hosts", len(targets)).Msg("tailers opened")
	return mt, nil
}

// Hosts returns the tailed hosts.
func (mt *MultiFileTailer) Hosts() []string {
	return append([]string(nil), mt.hosts...)
}

// Read returns what each host appended since its last read. A host whose
// read failed or overran the fleet timeout maps to "Error: <reason>".
func (mt *MultiFileTailer) Read(ctx context.Context) (map[string]string, error) {
	return mt.collect(ctx, func(ctx context.Context, t *ssh.FileTailer) (string, error) {
		return t.Read(ctx)
	})
}

// ReadSince returns each file's contents from pos onwards.
func (mt *MultiFileTailer) ReadSince(ctx context.Context, pos int64) (map[string]string, error) {
	return mt.collect(ctx, func(ctx context.Context, t *ssh.FileTailer) (string, error) {
		return t.ReadSince(ctx, pos)
	})
}

func (mt *MultiFileTailer) collect(ctx context.Context, read func(context.Context, *ssh.FileTailer) (string, error)) (map[string]string, error) {
	out := make([]string, len(mt.tailers))
	err := fanOut(ctx, mt.batchSize, len(mt.tailers), func(ctx context.Context, i int) error {
		hctx, cancel := withTimeout(ctx, mt.timeout)
		defer cancel()

		data, err := read(hctx, mt.tailers[i])
		if err != nil {
			if isFDExhaustion(err) {
				return &ResourceError{BatchSize: mt.batchSize, Err: err}
			}
			out[i] = "Error: " + failureMessage("Operation", mt.timeout, err)
			return nil
		}
		out[i] = data
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make(map[string]string, len(mt.hosts))
	for i, h := range mt.hosts {
		results[h] = out[i]
	}
	return results, nil
}

// Close performs a last read on every host and fixes Contents. Closing twice
// is a no-op.
func (mt *MultiFileTailer) Close(ctx context.Context) error {
	mt.mu.Lock()
	if mt.closed {
		mt.mu.Unlock()
		return nil
	}
	mt.closed = true
	mt.mu.Unlock()

	// Every tailer is closed even when ctx is already done, so each
	// connection is released. The last read of each host is still bounded by
	// the fleet timeout.
	out := make([]string, len(mt.tailers))
	_ = fanOut(context.WithoutCancel(ctx), mt.batchSize, len(mt.tailers), func(ctx context.Context, i int) error {
		hctx, cancel := withTimeout(ctx, mt.timeout)
		defer cancel()

		t := mt.tailers[i]
		if err := t.Close(hctx); err != nil {
			out[i] = "Error: " + failureMessage("Operation", mt.timeout, err)
			return nil
		}
		out[i] = t.Contents()
		return nil
	})

	contents := make(map[string]string, len(mt.hosts))
	for i, h := range mt.hosts {
		contents[h] = out[i]
	}
	mt.mu.Lock()
	mt.contents = contents
	mt.mu.Unlock()
	return nil
}

// Contents maps each host to everything appended to its file while tailed.
// It is empty until Close.
func (mt *MultiFileTailer) Contents() map[string]string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	out := make(map[string]string, len(mt.contents))
	for h, c := range mt.contents {
		out[h] = c
	}
	return out
}
