package errkind

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ConfigInvalid, errors.New("bad")), 2},
		{New(StateConflict, errors.New("busy")), 1},
		{New(ResourceKernel, errors.New("nope")), 125},
		{New(FSBindMissing, errors.New("nope")), 125},
		{Exited(42), 42},
		{Killed(9), 137},
		{errors.New("plain error, not ours"), 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestNewCapturesErrno(t *testing.T) {
	wrapped := fmt.Errorf("mount failed: %w", unix.EPERM)
	e := New(ResourceKernel, wrapped)
	if e.Errno != unix.EPERM {
		t.Errorf("Errno = %v, want EPERM", e.Errno)
	}
	if e.Unwrap() != wrapped {
		t.Error("Unwrap should return the original wrapped error")
	}
}

func TestErrorString(t *testing.T) {
	e := New(ConfigInvalid, errors.New("bad volume spec"))
	if got := e.Error(); got != "config.invalid: bad volume spec" {
		t.Errorf("Error() = %q", got)
	}
}
