package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mini-docker/mini-docker/configs"
	"github.com/mini-docker/mini-docker/errkind"
)

// Status is one of the four lifecycle states of §3's Container model.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusDead    Status = "dead"
)

// ContainerState mirrors state.json's fields exactly as listed in §6's
// on-disk format table.
type ContainerState struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         Status `json:"status"`
	PID            int    `json:"pid"`
	StartTimeTicks uint64 `json:"start_time_ticks"`
	ExitCode       *int   `json:"exit_code,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	StartedAt      *int64 `json:"started_at,omitempty"`
	FinishedAt     *int64 `json:"finished_at,omitempty"`
	RootfsMode     string `json:"rootfs_mode"`
	PodID          string `json:"pod_id,omitempty"`
}

func (s *Store) containerConfigPath(id string) string { return filepath.Join(s.ContainerDir(id), "config.json") }
func (s *Store) containerStatePath(id string) string  { return filepath.Join(s.ContainerDir(id), "state.json") }
func (s *Store) containerLockPath(id string) string   { return filepath.Join(s.ContainerDir(id), ".lock") }
func (s *Store) containerLogPath(id string) string    { return filepath.Join(s.ContainerDir(id), "container.log") }

// ContainerLogPath exposes container.log's path for the logs verb.
func (s *Store) ContainerLogPath(id string) string { return s.containerLogPath(id) }

// LoadContainerConfig reads back the frozen launch parameters CreateContainer
// wrote, the config exec needs to find the target's cgroup path and
// namespace set without re-deriving them.
func (s *Store) LoadContainerConfig(id string) (*configs.Config, error) {
	data, err := os.ReadFile(s.containerConfigPath(id))
	if err != nil {
		return nil, err
	}
	var cfg configs.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateContainer makes containers/<id>/ and writes config (the frozen
// launch parameters) and an initial "created" state.json.
func (s *Store) CreateContainer(id string, config any, st *ContainerState) error {
	dir := s.ContainerDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.containerConfigPath(id), data, 0o644); err != nil {
		return err
	}
	return s.SaveContainerState(st)
}

// SaveContainerState writes state.json atomically (write-temp-then-rename),
// per §4.7's "all writes to state.json go through" rule.
func (s *Store) SaveContainerState(st *ContainerState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	path := s.containerStatePath(st.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadContainerState reads state.json and reconciles it: a stale
// "running" entry whose pid is gone, or has been recycled by the
// kernel for an unrelated process, is rewritten to "dead" (§3
// invariant 5, §4.7's reconciliation rule). The rewritten state is
// persisted before being returned so subsequent reads see "dead"
// without re-probing.
func (s *Store) LoadContainerState(id string) (*ContainerState, error) {
	data, err := os.ReadFile(s.containerStatePath(id))
	if err != nil {
		return nil, err
	}
	var st ContainerState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.Status != StatusRunning {
		return &st, nil
	}
	alive, err := processMatches(st.PID, st.StartTimeTicks)
	if err != nil {
		return nil, err
	}
	if alive {
		return &st, nil
	}
	st.Status = StatusDead
	if err := s.SaveContainerState(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// WithContainerLock serialises stop/rm/exec on the same container id via
// an advisory flock on containers/<id>/.lock, per §5's ownership rule.
func (s *Store) WithContainerLock(id string, fn func() error) error {
	return withFlock(s.containerLockPath(id), fn)
}

// RemoveContainer deletes containers/<id>/ entirely. Callers must hold
// WithContainerLock and have already confirmed the container isn't
// running (or passed --force and torn it down) before calling this.
func (s *Store) RemoveContainer(id string) error {
	return os.RemoveAll(s.ContainerDir(id))
}

// ListContainerIDs returns every container id currently on disk,
// unfiltered by status.
func (s *Store) ListContainerIDs() ([]string, error) {
	entries, err := os.ReadDir(s.containersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ReserveName enforces §3 invariant 1: a name is unique among
// containers with status != dead. Returns state.conflict if name is
// already held by a live container.
func (s *Store) ReserveName(name string) error {
	if name == "" {
		return nil
	}
	ids, err := s.ListContainerIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		st, err := s.LoadContainerState(id)
		if err != nil {
			continue
		}
		if st.Name == name && st.Status != StatusDead {
			return errkind.New(errkind.StateConflict, fmt.Errorf("name %q already in use by %s", name, id))
		}
	}
	return nil
}

// Resolve maps a user-supplied id or name (or any unique prefix of an
// id at least 3 characters long) to the canonical 12-hex-character id,
// per §4.7's "name→id resolution" rule.
func (s *Store) Resolve(ref string) (string, error) {
	ids, err := s.ListContainerIDs()
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
	}
	var byName, byPrefix []string
	for _, id := range ids {
		if len(ref) >= 3 && strings.HasPrefix(id, ref) {
			byPrefix = append(byPrefix, id)
		}
		if st, err := s.LoadContainerState(id); err == nil && st.Name == ref {
			byName = append(byName, id)
		}
	}
	switch {
	case len(byName) == 1:
		return byName[0], nil
	case len(byName) > 1:
		return "", errkind.New(errkind.StateConflict, fmt.Errorf("name %q matches %d containers", ref, len(byName)))
	case len(byPrefix) == 1:
		return byPrefix[0], nil
	case len(byPrefix) > 1:
		return "", errkind.New(errkind.StateConflict, fmt.Errorf("prefix %q matches %d containers", ref, len(byPrefix)))
	default:
		return "", errkind.New(errkind.ConfigInvalid, fmt.Errorf("no container matches %q", ref))
	}
}

// processMatches reports whether pid is alive and its /proc/<pid>/stat
// start-time field equals startTicks, the check §3 invariant 5 requires
// before trusting a stored pid.
func processMatches(pid int, startTicks uint64) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	ticks, err := processStartTicks(pid)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return ticks == startTicks, nil
}

// ProcessStartTicks exposes processStartTicks to callers outside this
// package (runtime.Manager stamps it into a fresh ContainerState right
// after launch, the same value LoadContainerState later re-derives to
// detect pid reuse).
func ProcessStartTicks(pid int) (uint64, error) {
	return processStartTicks(pid)
}

// processStartTicks reads field 22 (starttime, in clock ticks since
// boot) out of /proc/<pid>/stat. The comm field (field 2) is
// parenthesized and may itself contain spaces, so fields are counted
// from the closing paren rather than by naive whitespace splitting.
func processStartTicks(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	if !scanner.Scan() {
		return 0, fmt.Errorf("empty /proc/%d/stat", pid)
	}
	line := scanner.Text()
	parenEnd := strings.LastIndex(line, ")")
	if parenEnd < 0 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(line[parenEnd+1:])
	// After "pid (comm)", the first field is state (index 0 here maps to
	// stat field 3); starttime is stat field 22, i.e. index 22-3=19 here.
	const startTimeIdx = 19
	if len(fields) <= startTimeIdx {
		return 0, fmt.Errorf("short /proc/%d/stat", pid)
	}
	return strconv.ParseUint(fields[startTimeIdx], 10, 64)
}
