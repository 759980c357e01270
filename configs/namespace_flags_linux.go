package configs

import "golang.org/x/sys/unix"

// cloneFlagFor maps a NamespaceType to its unix.CLONE_NEW* flag.
func cloneFlagFor(t NamespaceType) (int, bool) {
	switch t {
	case NEWNET:
		return unix.CLONE_NEWNET, true
	case NEWPID:
		return unix.CLONE_NEWPID, true
	case NEWNS:
		return unix.CLONE_NEWNS, true
	case NEWUTS:
		return unix.CLONE_NEWUTS, true
	case NEWIPC:
		return unix.CLONE_NEWIPC, true
	case NEWUSER:
		return unix.CLONE_NEWUSER, true
	case NEWCGROUP:
		return unix.CLONE_NEWCGROUP, true
	default:
		return 0, false
	}
}
