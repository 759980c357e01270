package state

import (
	"os"

	"golang.org/x/sys/unix"
)

// withFlock takes an exclusive advisory lock on path (creating it if
// necessary) for the duration of fn, the same primitive network.LeasePool
// and network's refcount file use for the bridge/lease lock.
func withFlock(path string, fn func() error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return fn()
}
