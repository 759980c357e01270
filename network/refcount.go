package network

import (
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// refcountPath tracks how many containers currently reference the shared
// bridge/NAT setup, so the last one to leave tears both down. A plain file
// under /run survives across mini-docker invocations the way the teacher's
// cgroup paths survive across runc invocations; it's guarded by the same
// advisory flock every mutator of it takes.
const refcountPath = "/run/mini-docker/network.refcount"

func withRefcountLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(refcountPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(refcountPath+".lock", os.O_CREATE|os.O_RDWR, 0o644)
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

func readRefcount() int {
	data, err := os.ReadFile(refcountPath)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return n
}

func writeRefcount(n int) error {
	if n <= 0 {
		return os.Remove(refcountPath)
	}
	return os.WriteFile(refcountPath, []byte(strconv.Itoa(n)), 0o644)
}

func incRef() {
	_ = withRefcountLock(func() error {
		return writeRefcount(readRefcount() + 1)
	})
}

func decRef() {
	_ = withRefcountLock(func() error {
		return writeRefcount(readRefcount() - 1)
	})
}

// maybeDeleteBridge removes the bridge and NAT rule once no container
// references them anymore, per §4.4's reference-counted teardown.
func maybeDeleteBridge() error {
	var result error
	_ = withRefcountLock(func() error {
		if readRefcount() > 0 {
			return nil
		}
		if err := teardownNAT(); err != nil {
			result = err
		}
		if err := deleteBridge(); err != nil && result == nil {
			result = err
		}
		if err := os.Remove(refcountPath); err != nil && !os.IsNotExist(err) {
			result = err
		}
		return nil
	})
	return result
}
