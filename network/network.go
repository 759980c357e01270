// Package network builds per-container networking: a shared Linux bridge
// (mini-docker0), a veth pair per container, NAT for outbound traffic, and
// pod netns joins. Grounded on the teacher-adjacent docker-archive-
// libcontainer's network.NetworkStrategy split (veth/loopback/netns
// strategies dispatched by a string key) and on original_source/
// mini_docker/network.py's exact constants and setup order, reimplemented
// with github.com/vishvananda/netlink and github.com/vishvananda/netns
// instead of shelling out to ip(8); the NAT rule is still installed by
// running iptables(8) (nat.go).
package network

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/mini-docker/mini-docker/errkind"
)

const (
	BridgeName   = "mini-docker0"
	BridgeIP     = "10.0.0.1"
	BridgeSubnet = "10.0.0.0/24"
	bridgeCIDR   = BridgeIP + "/24"
)

// Mode selects a container's network strategy (§4.4).
type Mode string

const (
	ModeNone   Mode = "none"
	ModeBridge Mode = "bridge"
	ModePod    Mode = "pod"
)

// Strategy mirrors docker-archive-libcontainer's NetworkStrategy interface:
// Create attaches the container side, Teardown removes it.
type Strategy interface {
	Create(b *Builder, pid int, id string, ip net.IP) (Attachment, error)
	Teardown(b *Builder, a Attachment) error
}

// Attachment records what a Strategy created, so Teardown can undo exactly
// that and nothing else.
type Attachment struct {
	Mode      Mode
	VethHost  string
	VethPeer  string
	IP        net.IP
	NetnsPath string
}

// Builder owns the bridge/NAT lifecycle shared by every container's veth
// attachment; Builder itself is stateless beyond the refcount helpers in
// refcount.go, so it's safe to construct fresh per call.
type Builder struct {
	Leases *LeasePool
}

func strategyFor(mode Mode) Strategy {
	switch mode {
	case ModeBridge:
		return &vethStrategy{}
	case ModePod:
		return &podStrategy{}
	default:
		return &noneStrategy{}
	}
}

// Attach sets up networking for a newly-created container's init process
// (already unshared into a fresh network namespace), per the Mode named in
// netMode. podNetnsPath is only consulted when netMode is ModePod.
func (b *Builder) Attach(pid int, id string, netMode Mode, podNetnsPath string) (Attachment, error) {
	strat := strategyFor(netMode)
	var ip net.IP
	if netMode == ModeBridge {
		var err error
		ip, err = b.Leases.Allocate(id)
		if err != nil {
			return Attachment{}, err
		}
	}
	a, err := strat.Create(b, pid, id, ip)
	if err != nil {
		if netMode == ModeBridge {
			_ = b.Leases.Release(id)
		}
		return Attachment{}, err
	}
	a.NetnsPath = podNetnsPath
	return a, nil
}

// Detach undoes a.
func (b *Builder) Detach(a Attachment, id string) error {
	strat := strategyFor(a.Mode)
	err := strat.Teardown(b, a)
	if a.Mode == ModeBridge {
		if rerr := b.Leases.Release(id); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

// ensureBridge creates mini-docker0 with BridgeIP/24 if it doesn't already
// exist, and brings it up, per original_source's create_bridge.
func ensureBridge() (netlink.Link, error) {
	link, err := netlink.LinkByName(BridgeName)
	if err == nil {
		return link, nil
	}
	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: BridgeName}}
	if err := netlink.LinkAdd(br); err != nil {
		return nil, errkind.New(errkind.NetBridgeUnavailable, fmt.Errorf("create bridge %s: %w", BridgeName, err))
	}
	addr, err := netlink.ParseAddr(bridgeCIDR)
	if err != nil {
		return nil, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	if err := netlink.AddrAdd(br, addr); err != nil {
		return nil, errkind.New(errkind.NetBridgeUnavailable, fmt.Errorf("assign %s to %s: %w", bridgeCIDR, BridgeName, err))
	}
	if err := netlink.LinkSetUp(br); err != nil {
		return nil, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	return br, nil
}

// deleteBridge removes mini-docker0, used when the last container
// referencing it tears down (see refcount.go).
func deleteBridge() error {
	link, err := netlink.LinkByName(BridgeName)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return nil
		}
		return err
	}
	return netlink.LinkDel(link)
}

// vethNames derives the host/peer veth names from a container id, truncated
// to Linux's 15-byte IFNAMSIZ-1 limit exactly as original_source does.
func vethNames(id string) (host, peer string) {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	host = "veth" + short
	if len(host) > 15 {
		host = host[:15]
	}
	return host, "eth0"
}

// withNetns runs fn with the calling goroutine's thread switched into the
// network namespace at path, restoring the original namespace afterward.
// netns.Set mutates the calling OS thread, not the goroutine, so this pins
// the goroutine to its current thread for the duration: without that, the
// Go scheduler is free to resume the deferred restore on a different
// thread, leaving the first thread stuck in the container's netns.
func withNetns(path string, fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	target, err := netns.GetFromPath(path)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", path, err)
	}
	defer target.Close()

	current, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer current.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("enter netns %s: %w", path, err)
	}
	defer netns.Set(current)

	return fn()
}

func pidNetnsPath(pid int) string {
	return fmt.Sprintf("/proc/%d/ns/net", pid)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
