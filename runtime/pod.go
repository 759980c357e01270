package runtime

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/errkind"
	"github.com/mini-docker/mini-docker/launcher"
	"github.com/mini-docker/mini-docker/state"
	"github.com/mini-docker/mini-docker/sys"
)

// podNamespaceKinds are the namespace kinds a pod shares across its
// members, per §4.8's "pod create" description.
var podNamespaceKinds = []string{"net", "ipc", "uts"}

// PodCreate implements `pod create [--name]` (§4.8): spawns a
// namespace-pinning placeholder and bind-mounts its net/ipc/uts
// namespace handles onto pods/<id>/ns/*, then lets the placeholder
// exit — the bind mounts keep the namespaces alive without it.
func (m *Manager) PodCreate(name string) (*state.PodState, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}

	st := &state.PodState{ID: id, Name: name, SharedNamespaces: podNamespaceKinds}
	if err := m.Store.CreatePod(st); err != nil {
		return nil, err
	}

	placeholder, err := launcher.SpawnPlaceholder()
	if err != nil {
		_ = m.Store.RemovePod(id, func(string) error { return nil })
		return nil, errkind.New(errkind.ResourceKernel, err)
	}

	var mounted []string
	for _, kind := range podNamespaceKinds {
		target := m.Store.PodNamespacePath(id, kind)
		f, err := os.Create(target)
		if err != nil {
			m.unwindPod(placeholder, mounted, id)
			return nil, err
		}
		f.Close()
		source := fmt.Sprintf("/proc/%d/ns/%s", placeholder.Pid, kind)
		if err := sys.Mount(source, target, "", unix.MS_BIND, ""); err != nil {
			m.unwindPod(placeholder, mounted, id)
			return nil, errkind.New(errkind.ResourceKernel, fmt.Errorf("bind mount %s: %w", kind, err))
		}
		mounted = append(mounted, target)
	}

	if err := placeholder.Release(); err != nil {
		m.unwindPod(placeholder, mounted, id)
		return nil, errkind.New(errkind.ResourceKernel, err)
	}
	return st, nil
}

func (m *Manager) unwindPod(placeholder *launcher.Placeholder, mounted []string, id string) {
	for _, target := range mounted {
		_ = sys.Unmount(target, 0)
	}
	_ = placeholder.Release()
	_ = m.Store.RemovePod(id, func(string) error { return nil })
}

// PodAdd implements `pod add <pod> [run flags...]` (§4.8): runs a
// container in net_mode=pod against the pod's pinned network
// namespace and records it as a member.
func (m *Manager) PodAdd(podRef string, opts RunOptions) (*state.ContainerState, error) {
	podID, err := m.Store.ResolvePod(podRef)
	if err != nil {
		return nil, err
	}
	opts.NetMode = "pod"
	opts.PodRef = podID

	st, err := m.Run(opts)
	if err != nil {
		return nil, err
	}

	pod, err := m.Store.LoadPod(podID)
	if err != nil {
		return st, err
	}
	pod.Members = append(pod.Members, st.ID)
	if err := m.Store.SavePod(pod); err != nil {
		return st, err
	}
	return st, nil
}

// PodLs implements `pod ls` (§4.8).
func (m *Manager) PodLs() ([]*state.PodState, error) {
	ids, err := m.Store.ListPodIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*state.PodState, 0, len(ids))
	for _, id := range ids {
		st, err := m.Store.LoadPod(id)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// PodInspect implements `pod inspect <pod>` (§4.8).
func (m *Manager) PodInspect(ref string) (*state.PodState, error) {
	id, err := m.Store.ResolvePod(ref)
	if err != nil {
		return nil, err
	}
	return m.Store.LoadPod(id)
}

// PodRm implements `pod rm <pod> [--force]` (§4.8): refuses while any
// member is running unless force is set, in which case members are
// stopped and removed first.
func (m *Manager) PodRm(ref string, force bool) error {
	id, err := m.Store.ResolvePod(ref)
	if err != nil {
		return err
	}
	pod, err := m.Store.LoadPod(id)
	if err != nil {
		return err
	}
	for _, member := range pod.Members {
		st, err := m.Store.LoadContainerState(member)
		if err != nil {
			continue
		}
		if st.Status == state.StatusRunning {
			if !force {
				return errkind.New(errkind.StateConflict, fmt.Errorf("pod %s has running member %s; use --force", id, member))
			}
			if err := m.Rm(member, true); err != nil {
				return err
			}
		} else {
			_ = m.Store.RemoveContainer(member)
		}
	}
	return m.Store.RemovePod(id, func(path string) error { return sys.Unmount(path, 0) })
}
