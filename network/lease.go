package network

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// LeasePool tracks which addresses in BridgeSubnet are handed out to which
// container id, persisted to leases.json under an advisory flock so
// concurrent `run` invocations don't race on the same address (§4.4/§5).
type LeasePool struct {
	Path string // e.g. <state-root>/network/leases.json
}

type leaseFile struct {
	// ByID maps container id to its assigned dotted-quad IP.
	ByID map[string]string `json:"by_id"`
}

func (p *LeasePool) withLock(fn func(*leaseFile) (*leaseFile, error)) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return err
	}
	lockPath := p.Path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lf.Close()
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	cur := &leaseFile{ByID: map[string]string{}}
	if data, err := os.ReadFile(p.Path); err == nil {
		_ = json.Unmarshal(data, cur)
	}
	if cur.ByID == nil {
		cur.ByID = map[string]string{}
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}

// Allocate reserves the lowest free address in BridgeSubnet (skipping
// .0/.1/.255) for id and persists the assignment.
func (p *LeasePool) Allocate(id string) (net.IP, error) {
	var assigned net.IP
	err := p.withLock(func(lf *leaseFile) (*leaseFile, error) {
		used := map[string]bool{}
		for _, ip := range lf.ByID {
			used[ip] = true
		}
		_, subnet, err := net.ParseCIDR(BridgeSubnet)
		if err != nil {
			return nil, err
		}
		for i := 2; i < 255; i++ {
			ip := make(net.IP, len(subnet.IP))
			copy(ip, subnet.IP)
			ip[len(ip)-1] = byte(i)
			if !used[ip.String()] {
				lf.ByID[id] = ip.String()
				assigned = ip
				return lf, nil
			}
		}
		return nil, fmt.Errorf("no free address in %s", BridgeSubnet)
	})
	return assigned, err
}

// Release frees id's leased address, if any.
func (p *LeasePool) Release(id string) error {
	return p.withLock(func(lf *leaseFile) (*leaseFile, error) {
		if _, ok := lf.ByID[id]; !ok {
			return nil, nil
		}
		delete(lf.ByID, id)
		return lf, nil
	})
}
