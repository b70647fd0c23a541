package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CommandSpec describes how one job type runs on this device. Argv is used
// by the exec runtime; Image and Cmd by the docker runtime.
type CommandSpec struct {
	Argv  []string `yaml:"argv,omitempty"`
	Image string   `yaml:"image,omitempty"`
	Cmd   string   `yaml:"cmd,omitempty"`
}

// Commands is the device's command map, loaded from a YAML file. Job types
// not listed here are rejected; the map is the allowlist of what this
// device will ever execute.
type Commands struct {
	Commands map[string]CommandSpec `yaml:"commands"`
}

// LoadCommands reads and validates a command map file.
func LoadCommands(path string) (*Commands, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading command map: %w", err)
	}

	var cmds Commands
	if err := yaml.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("parsing command map: %w", err)
	}
	if len(cmds.Commands) == 0 {
		return nil, fmt.Errorf("command map %s defines no commands", path)
	}
	for name, spec := range cmds.Commands {
		if len(spec.Argv) == 0 && spec.Image == "" {
			return nil, fmt.Errorf("command %q defines neither argv nor image", name)
		}
	}
	return &cmds, nil
}

// Lookup returns the spec for a job type.
func (c *Commands) Lookup(jobType string) (CommandSpec, bool) {
	spec, ok := c.Commands[jobType]
	return spec, ok
}
