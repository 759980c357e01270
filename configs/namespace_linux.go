package configs

// NamespaceType names a Linux namespace kind, adapted verbatim from the
// teacher's configs.NamespaceType constants.
type NamespaceType string

const (
	NEWNET    NamespaceType = "NEWNET"
	NEWPID    NamespaceType = "NEWPID"
	NEWNS     NamespaceType = "NEWNS"
	NEWUTS    NamespaceType = "NEWUTS"
	NEWIPC    NamespaceType = "NEWIPC"
	NEWUSER   NamespaceType = "NEWUSER"
	NEWCGROUP NamespaceType = "NEWCGROUP"
)

// Namespace configures one namespace: either created fresh (Path empty) or
// joined via setns (Path set to a /proc/<pid>/ns/<type> or pinned handle).
type Namespace struct {
	Type NamespaceType `json:"type"`
	Path string        `json:"path"`
}

type Namespaces []Namespace

func (n *Namespaces) index(t NamespaceType) int {
	for i, ns := range *n {
		if ns.Type == t {
			return i
		}
	}
	return -1
}

// Contains reports whether t is one of the configured namespaces.
func (n *Namespaces) Contains(t NamespaceType) bool {
	return n.index(t) != -1
}

// PathOf returns the join path for t, if any ("" means "create fresh").
func (n *Namespaces) PathOf(t NamespaceType) string {
	i := n.index(t)
	if i == -1 {
		return ""
	}
	return (*n)[i].Path
}

// CloneFlags returns the unix.CLONE_* flags for every namespace in n that
// has no Path (i.e. is to be created, not joined).
func (n Namespaces) CloneFlags() int {
	var flags int
	for _, ns := range n {
		if ns.Path != "" {
			continue
		}
		if f, ok := cloneFlagFor(ns.Type); ok {
			flags |= f
		}
	}
	return flags
}
