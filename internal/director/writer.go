package director

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteProject writes a project to a YAML file
func WriteProject(p *Project, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadProject reads a project from a YAML file
func ReadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProject, path, err)
	}
	if p.Version == "" {
		p.Version = Version
	}

	return &p, nil
}
