// Package errkind defines the error taxonomy shared across mini-docker's
// components and the exit codes the cmd layer maps them to.
package errkind

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind identifies which part of §7's error taxonomy an error belongs to.
type Kind string

const (
	ConfigInvalid       Kind = "config.invalid"
	StateConflict       Kind = "state.conflict"
	ResourceKernel       Kind = "resource.kernel"
	ResourceCgroup       Kind = "resource.cgroup"
	FSBindMissing        Kind = "fs.bind-missing"
	NetBridgeUnavailable Kind = "net.bridge-unavailable"
	LaunchHandshakeBroken Kind = "launch.handshake-broken"
	UserExit             Kind = "user.exit"
	SignalKilled         Kind = "signal.killed"
)

// Error wraps an underlying error with the Kind the caller should branch on,
// and, when the failure came from a syscall, the errno that produced it.
type Error struct {
	Kind  Kind
	Err   error
	Errno unix.Errno
	// Signal is set for SignalKilled.
	Signal int
	// Code is set for UserExit (0-255).
	Code int
}

func New(kind Kind, err error) *Error {
	e := &Error{Kind: kind, Err: err}
	if errno, ok := asErrno(err); ok {
		e.Errno = errno
	}
	return e
}

func Kernel(err error) *Error {
	return New(ResourceKernel, err)
}

func Killed(sig int) *Error {
	return &Error{Kind: SignalKilled, Signal: sig, Err: fmt.Errorf("killed by signal %d", sig)}
}

func Exited(code int) *Error {
	return &Error{Kind: UserExit, Code: code, Err: fmt.Errorf("exited with code %d", code)}
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("%s: %v (errno=%s)", e.Kind, e.Err, e.Errno)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func asErrno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	for u := err; u != nil; {
		if e, ok := u.(unix.Errno); ok {
			return e, true
		}
		type unwrapper interface{ Unwrap() error }
		uw, ok := u.(unwrapper)
		if !ok {
			break
		}
		u = uw.Unwrap()
	}
	return errno, false
}

// ExitCode maps a Kind (and, for signal/exit kinds, its payload) to the
// process exit code documented in §6.
func ExitCode(err error) int {
	e, ok := err.(*Error)
	if !ok {
		return 1
	}
	switch e.Kind {
	case ConfigInvalid:
		return 2
	case StateConflict:
		return 1
	case ResourceKernel, ResourceCgroup, FSBindMissing, NetBridgeUnavailable, LaunchHandshakeBroken:
		return 125
	case UserExit:
		return e.Code
	case SignalKilled:
		return 128 + e.Signal
	default:
		return 1
	}
}
