package network

import (
	"os"
	"os/exec"
)

// setupNAT enables IP forwarding and adds a MASQUERADE rule for
// BridgeSubnet, translated directly from original_source's setup_nat: no Go
// netfilter library appears anywhere in the retrieved examples, so this
// shells out to iptables(8) exactly as the original does, guarded by -C/-A
// to stay idempotent across repeated container starts.
func setupNAT() error {
	_ = os.WriteFile("/proc/sys/net/ipv4/ip_forward", []byte("1"), 0o644)

	check := exec.Command("iptables", "-t", "nat", "-C", "POSTROUTING", "-s", BridgeSubnet, "-j", "MASQUERADE")
	if err := check.Run(); err == nil {
		return nil
	}
	add := exec.Command("iptables", "-t", "nat", "-A", "POSTROUTING", "-s", BridgeSubnet, "-j", "MASQUERADE")
	return add.Run()
}

// teardownNAT removes the MASQUERADE rule added by setupNAT, called only
// once the bridge's last referencing container has gone (see refcount.go).
func teardownNAT() error {
	del := exec.Command("iptables", "-t", "nat", "-D", "POSTROUTING", "-s", BridgeSubnet, "-j", "MASQUERADE")
	return del.Run()
}
