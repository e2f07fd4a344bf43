package workspace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixture is the on-disk description of one or more seeded workspaces.
type Fixture struct {
	Workspaces []FixtureWorkspace `yaml:"workspaces"`
}

// FixtureWorkspace seeds a single workspace.
type FixtureWorkspace struct {
	Workspace `yaml:",inline"`

	Channels []*Channel `yaml:"channels"`
	Roles    []*Role    `yaml:"roles"`
	Members  []*Member  `yaml:"members"`
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fixture Fixture

	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to decode workspace fixture: %w", err)
	}

	for i, ws := range fixture.Workspaces {
		if ws.ID == "" {
			return nil, fmt.Errorf("workspace %d: missing id", i)
		}

		if ws.EveryoneRoleID == "" {
			return nil, fmt.Errorf("workspace %s: missing everyone_role_id", ws.ID)
		}
	}

	return &fixture, nil
}

// LoadMemory builds a Memory client seeded from the YAML fixture at path.
func LoadMemory(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace fixture %s: %w", path, err)
	}

	fixture, err := ParseFixture(data)
	if err != nil {
		return nil, err
	}

	mem := NewMemory()
	for _, ws := range fixture.Workspaces {
		mem.Seed(ws.Workspace, ws.Channels, ws.Roles, ws.Members)
	}

	return mem, nil
}
