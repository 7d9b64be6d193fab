package director

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ivlev/motion2video/internal/system"
)

// ProjectsDir is where the CLI looks for project files by default.
var ProjectsDir = filepath.Join("input", "projects")

// GenerateProjectPath creates a timestamped project filename in dir
func GenerateProjectPath(dir string) string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("project_%s.yaml", timestamp))
}

// FindLatestProject finds the most recently modified project file in dir
func FindLatestProject(dir string) (string, error) {
	path, err := system.FindLatest(dir, ".yaml", ".yml")
	if err != nil {
		return "", fmt.Errorf("find project: %w", err)
	}
	return path, nil
}
