package network

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/mini-docker/mini-docker/errkind"
)

// noneStrategy leaves the container's already-unshared network namespace
// alone beyond bringing up loopback, per §4.4's "none" mode.
type noneStrategy struct{}

func (noneStrategy) Create(b *Builder, pid int, id string, ip net.IP) (Attachment, error) {
	if err := withNetns(pidNetnsPath(pid), bringUpLoopback); err != nil {
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	return Attachment{Mode: ModeNone}, nil
}

func (noneStrategy) Teardown(b *Builder, a Attachment) error { return nil }

// vethStrategy is §4.4's bridge mode: ensure the bridge exists, create a
// veth pair, attach the host side to the bridge, move the peer into the
// container's netns, then configure the peer's address/route/loopback from
// inside that namespace. Grounded on original_source's
// setup_container_networking plus configure_container_network.
type vethStrategy struct{}

func (vethStrategy) Create(b *Builder, pid int, id string, ip net.IP) (Attachment, error) {
	if _, err := ensureBridge(); err != nil {
		return Attachment{}, err
	}
	incRef()

	hostName, peerName := vethNames(id)
	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{Name: hostName},
		PeerName:  peerName,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, fmt.Errorf("create veth pair %s/%s: %w", hostName, peerName, err))
	}

	hostLink, err := netlink.LinkByName(hostName)
	if err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	bridge, err := netlink.LinkByName(BridgeName)
	if err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	if err := netlink.LinkSetMaster(hostLink, bridge); err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, fmt.Errorf("attach %s to %s: %w", hostName, BridgeName, err))
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}

	peerLink, err := netlink.LinkByName(peerName)
	if err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}
	if err := netlink.LinkSetNsPid(peerLink, pid); err != nil {
		decRef()
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, fmt.Errorf("move %s into netns of pid %d: %w", peerName, pid, err))
	}

	if err := setupNAT(); err != nil {
		return Attachment{}, err
	}

	if err := withNetns(pidNetnsPath(pid), func() error {
		return configureInside(peerName, ip)
	}); err != nil {
		return Attachment{}, errkind.New(errkind.NetBridgeUnavailable, err)
	}

	return Attachment{Mode: ModeBridge, VethHost: hostName, VethPeer: peerName, IP: ip}, nil
}

func (vethStrategy) Teardown(b *Builder, a Attachment) error {
	defer decRef()
	link, err := netlink.LinkByName(a.VethHost)
	if err != nil {
		if _, ok := err.(netlink.LinkNotFoundError); ok {
			return maybeDeleteBridge()
		}
		return err
	}
	if err := netlink.LinkDel(link); err != nil {
		return err
	}
	return maybeDeleteBridge()
}

// podStrategy covers containers in a pod's network namespace. The join
// itself happens in the launcher's child, which setns's into the pod's
// pinned handle (pods/<id>/ns/net, bind-mounted from the placeholder's
// /proc/<pid>/ns/net at pod creation) before it execve's. Nothing is
// created or destroyed here; pod rm owns the lifecycle of the pinned handle.
type podStrategy struct{}

func (podStrategy) Create(b *Builder, pid int, id string, ip net.IP) (Attachment, error) {
	return Attachment{Mode: ModePod}, nil
}

func (podStrategy) Teardown(b *Builder, a Attachment) error { return nil }

func bringUpLoopback() error {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(lo)
}

// configureInside must run with the calling thread already switched into
// the container's network namespace (see withNetns): brings up loopback,
// assigns ip/24 to peerName, brings it up, and adds the default route via
// the bridge, per original_source's configure_container_network.
func configureInside(peerName string, ip net.IP) error {
	if err := bringUpLoopback(); err != nil {
		return err
	}
	link, err := netlink.LinkByName(peerName)
	if err != nil {
		return err
	}
	addr, err := netlink.ParseAddr(fmt.Sprintf("%s/24", ip.String()))
	if err != nil {
		return err
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return err
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return err
	}
	gw := net.ParseIP(BridgeIP)
	route := &netlink.Route{LinkIndex: link.Attrs().Index, Gw: gw}
	return netlink.RouteAdd(route)
}
