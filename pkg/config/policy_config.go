// Package config loads workspace policy files.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/dukex/warden/pkg/models"
	"github.com/dukex/warden/pkg/policy"
	"gopkg.in/yaml.v3"
)

// ErrNoPolicies is returned for policy files that define no workspace.
var ErrNoPolicies = errors.New("policy file defines no workspaces")

// PolicyFile maps workspace ids to their policy.
type PolicyFile struct {
	Workspaces map[string]models.Policy `yaml:"workspaces"`
}

// WorkspaceIDs returns the configured workspace ids in sorted order.
func (f *PolicyFile) WorkspaceIDs() []string {
	return slices.Sorted(maps.Keys(f.Workspaces))
}

// ParsePolicyFile decodes a YAML policy file and checks every policy in it.
func ParsePolicyFile(data []byte) (*PolicyFile, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if len(file.Workspaces) == 0 {
		return nil, ErrNoPolicies
	}

	errs := make([]error, 0)

	for _, id := range file.WorkspaceIDs() {
		if err := policy.Check(file.Workspaces[id]); err != nil {
			errs = append(errs, fmt.Errorf("workspace %s: %w", id, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &file, nil
}

// LoadPolicyFile reads and checks the policy file at path.
func LoadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return ParsePolicyFile(data)
}
