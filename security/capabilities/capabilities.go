// Package capabilities computes and applies a container's capability sets
// (§4.5): drop everything except an explicit allow-list from the bounding
// set, then set effective/permitted/inheritable/ambient to match. Grounded
// on github.com/syndtr/gocapability/capability, already a transitive
// dependency of the teacher via its libcontainer/configs usage, and
// cross-checked against original_source/mini_docker/capabilities.py's
// CAP_* numbering and MINIMAL_CAPS set.
package capabilities

import (
	"fmt"

	"github.com/syndtr/gocapability/capability"

	"github.com/mini-docker/mini-docker/errkind"
)

// Default is the allow-list spec.md §4.5 names: enough for a typical
// unprivileged process inside the container (chown its own files, switch
// uid/gid on exec, send signals to its own children) without admin rights.
var Default = []string{"CAP_CHOWN", "CAP_SETUID", "CAP_SETGID", "CAP_KILL"}

// byName mirrors original_source's CAPABILITIES dict, restricted to the
// names this spec actually allows or ever needs to name in config.
var byName = map[string]capability.Cap{
	"CAP_CHOWN":          capability.CAP_CHOWN,
	"CAP_DAC_OVERRIDE":   capability.CAP_DAC_OVERRIDE,
	"CAP_FOWNER":         capability.CAP_FOWNER,
	"CAP_FSETID":         capability.CAP_FSETID,
	"CAP_KILL":           capability.CAP_KILL,
	"CAP_SETGID":         capability.CAP_SETGID,
	"CAP_SETUID":         capability.CAP_SETUID,
	"CAP_SETPCAP":        capability.CAP_SETPCAP,
	"CAP_NET_BIND_SERVICE": capability.CAP_NET_BIND_SERVICE,
	"CAP_NET_RAW":        capability.CAP_NET_RAW,
	"CAP_SYS_CHROOT":     capability.CAP_SYS_CHROOT,
	"CAP_MKNOD":          capability.CAP_MKNOD,
	"CAP_AUDIT_WRITE":    capability.CAP_AUDIT_WRITE,
	"CAP_SETFCAP":        capability.CAP_SETFCAP,
}

// Resolve converts a list of "CAP_XXX" names into gocapability Cap values,
// rejecting unknown names with config.invalid (§7).
func Resolve(names []string) ([]capability.Cap, error) {
	if len(names) == 0 {
		names = Default
	}
	caps := make([]capability.Cap, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, errkind.New(errkind.ConfigInvalid, fmt.Errorf("unknown capability %q", n))
		}
		caps = append(caps, c)
	}
	return caps, nil
}

// ApplyToSelf drops every capability not in caps from the bounding set and
// sets effective/permitted/inheritable/ambient to exactly caps, for the
// calling process (the container's init, right before execve per §4.6's
// step ordering: capability drop happens before NO_NEW_PRIVS/seccomp).
func ApplyToSelf(caps []capability.Cap) error {
	c, err := capability.NewPid2(0)
	if err != nil {
		return errkind.Kernel(fmt.Errorf("capability.NewPid2: %w", err))
	}
	if err := c.Load(); err != nil {
		return errkind.Kernel(fmt.Errorf("load current capabilities: %w", err))
	}
	c.Clear(capability.CAPS | capability.BOUNDING | capability.AMBIENT)
	c.Set(capability.CAPS|capability.BOUNDING|capability.AMBIENT, caps...)
	if err := c.Apply(capability.CAPS | capability.BOUNDING | capability.AMBIENT); err != nil {
		return errkind.Kernel(fmt.Errorf("apply capability sets: %w", err))
	}
	return nil
}
