package multi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yoanbernabeu/sshfleet/internal/ssh"
)

func sampleResult() *Result {
	return NewResult(
		[]string{"a:22", "b:22", "c:22", "d:22"},
		[]*ssh.Result{
			{Stdout: "ok\n"},
			{Stderr: "boom", Status: 1},
			{Stdout: "ok\n"},
			ssh.SentinelResult("Operation timed out after 1 second"),
		},
	)
}

func TestResultAccessors(t *testing.T) {
	r := sampleResult()

	require.Equal(t, 4, r.Len())
	require.Equal(t, []string{"a:22", "b:22", "c:22", "d:22"}, r.Hosts())
	require.True(t, r.Contains("b:22"))
	require.False(t, r.Contains("z:22"))

	res, ok := r.Get("b:22")
	require.True(t, ok)
	require.Equal(t, 1, res.Status)
	_, ok = r.Get("z:22")
	require.False(t, ok)

	values := r.Values()
	require.Len(t, values, 4)
	require.Equal(t, -1, values[3].Status)

	items := r.Items()
	require.Equal(t, "c:22", items[2].Host)
	require.Equal(t, "ok\n", items[2].Result.Stdout)

	var seen []string
	for host := range r.All() {
		seen = append(seen, host)
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a:22", "b:22"}, seen)

	require.Equal(t, "MultiResult(4 hosts: 2 succeeded, 2 failed)", r.String())
}

func TestResultPartitions(t *testing.T) {
	r := sampleResult()

	succeeded := r.Succeeded()
	failed := r.Failed()
	require.Equal(t, []string{"a:22", "c:22"}, succeeded.Hosts())
	require.Equal(t, []string{"b:22", "d:22"}, failed.Hosts())
	require.Equal(t, r.Len(), succeeded.Len()+failed.Len())
}

func TestResultEmptyPartitionsAreNil(t *testing.T) {
	allOK := NewResult([]string{"a:22", "b:22"}, []*ssh.Result{{}, {}})
	require.Nil(t, allOK.Failed())
	require.NotNil(t, allOK.Succeeded())
	require.NoError(t, allOK.RaiseIfAnyFailed())

	allBad := NewResult([]string{"a:22"}, []*ssh.Result{{Status: 1}})
	require.Nil(t, allBad.Succeeded())

	empty := NewResult(nil, nil)
	require.Nil(t, empty.Succeeded())
	require.Nil(t, empty.Failed())
	require.Equal(t, "MultiResult(0 hosts: 0 succeeded, 0 failed)", empty.String())
}

func TestRaiseIfAnyFailed(t *testing.T) {
	err := sampleResult().RaiseIfAnyFailed()

	var pfe *PartialFailureError
	require.True(t, errors.As(err, &pfe))
	require.Equal(t, []string{"a:22", "c:22"}, pfe.Succeeded.Hosts())
	require.Equal(t, []string{"b:22", "d:22"}, pfe.Failed.Hosts())
	require.Equal(t, "operation failed on 2 of 4 host(s)", err.Error())

	err = NewResult([]string{"a:22"}, []*ssh.Result{{Status: 1}}).RaiseIfAnyFailed()
	require.ErrorAs(t, err, &pfe)
	require.Nil(t, pfe.Succeeded)
}

func TestNewResultDropsDuplicates(t *testing.T) {
	r := NewResult([]string{"a:22", "a:22"}, []*ssh.Result{{Stdout: "first"}, {Stdout: "second"}})
	require.Equal(t, 1, r.Len())
	res, _ := r.Get("a:22")
	require.Equal(t, "first", res.Stdout)
}
