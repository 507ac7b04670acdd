package multi

import (
	"fmt"
	"iter"

	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

// Item pairs a host with its result.
type Item struct {
	Host   string
	Result *ssh.Result
}

// Result maps each host of a fan-out call to its outcome, in host
// declaration order.
type Result struct {
	hosts   []string
	results map[string]*ssh.Result
}

// NewResult builds a Result from parallel slices of hosts and outcomes.
func NewResult(hosts []string, results []*ssh.Result) *Result {
	r := &Result{
		hosts:   make([]string, 0, len(hosts)),
		results: make(map[string]*ssh.Result, len(hosts)),
	}
	for i, h := range hosts {
		if _, dup := r.results[h]; dup {
			continue
		}
		r.hosts = append(r.hosts, h)
		r.results[h] = results[i]
	}
	return r
}

// Len returns the number of hosts.
func (r *Result) Len() int {
	return len(r.hosts)
}

// Get returns the result for host.
func (r *Result) Get(host string) (*ssh.Result, bool) {
	res, ok := r.results[host]
	return res, ok
}

// Contains reports whether host is part of the result.
func (r *Result) Contains(host string) bool {
	_, ok := r.results[host]
	return ok
}

// Hosts returns the hosts in declaration order.
func (r *Result) Hosts() []string {
	return append([]string(nil), r.hosts...)
}

// Values returns the results in host order.
func (r *Result) Values() []*ssh.Result {
	values := make([]*ssh.Result, len(r.hosts))
	for i, h := range r.hosts {
		values[i] = r.results[h]
	}
	return values
}

// Items returns host/result pairs in host order.
func (r *Result) Items() []Item {
	items := make([]Item, len(r.hosts))
	for i, h := range r.hosts {
		items[i] = Item{Host: h, Result: r.results[h]}
	}
	return items
}

// All iterates over host/result pairs in host order.
func (r *Result) All() iter.Seq2[string, *ssh.Result] {
	return func(yield func(string, *ssh.Result) bool) {
		for _, h := range r.hosts {
			if !yield(h, r.results[h]) {
				return
			}
		}
	}
}

// Succeeded returns the hosts with status 0, or nil when there are none.
func (r *Result) Succeeded() *Result {
	return r.filter(func(res *ssh.Result) bool { return res.Status == 0 })
}

// Failed returns the hosts with a non-zero status, or nil when there are
// none.
func (r *Result) Failed() *Result {
	return r.filter(func(res *ssh.Result) bool { return res.Status != 0 })
}

func (r *Result) filter(keep func(*ssh.Result) bool) *Result {
	var (
		hosts   []string
		results []*ssh.Result
	)
	for _, h := range r.hosts {
		if res := r.results[h]; keep(res) {
			hosts = append(hosts, h)
			results = append(results, res)
		}
	}
	if len(hosts) == 0 {
		return nil
	}
	return NewResult(hosts, results)
}

// RaiseIfAnyFailed returns a *PartialFailureError when at least one host has
// a non-zero status.
func (r *Result) RaiseIfAnyFailed() error {
	failed := r.Failed()
	if failed == nil {
		return nil
	}
	return &PartialFailureError{
		Total:     r.Len(),
		Succeeded: r.Succeeded(),
		Failed:    failed,
	}
}

func (r *Result) String() string {
	succeeded := 0
	for _, h := range r.hosts {
		if r.results[h].Status == 0 {
			succeeded++
		}
	}
	return fmt.Sprintf("MultiResult(%d hosts: %d succeeded, %d failed)", len(r.hosts), succeeded, len(r.hosts)-succeeded)
}

// PartialFailureError reports a fan-out call where some hosts failed.
// Succeeded is nil when every host failed.
type PartialFailureError struct {
	Total     int
	Succeeded *Result
	Failed    *Result
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("operation failed on %d of %d host(s)", e.Failed.Len(), e.Total)
}
