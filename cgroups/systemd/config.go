package systemd

import "fmt"

// Config is the subset of configs.Cgroup the systemd drivers need; kept
// separate from configs.Cgroup so this package doesn't import configs.
type Config struct {
	Name        string
	ScopePrefix string
	Rootless    bool
}

func (c *Config) unitName() string {
	prefix := c.ScopePrefix
	if prefix == "" {
		prefix = "mini-docker"
	}
	return fmt.Sprintf("%s-%s.scope", prefix, c.Name)
}
