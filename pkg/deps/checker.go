// Package deps checks that external binaries are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"kabutune/internal/logger"
)

// Checker verifies that required dependencies are available.
type Checker struct {
	dependencies []string
	paths        map[string]string
	lookPath     func(string) (string, error)
}

// NewChecker creates a new dependency checker with the given dependencies.
func NewChecker(deps ...string) *Checker {
	return &Checker{
		dependencies: deps,
		paths:        make(map[string]string),
		lookPath:     exec.LookPath,
	}
}

// WithPath checks path instead of searching PATH for name. An empty path
// is ignored.
func (c *Checker) WithPath(name, path string) *Checker {
	if path != "" {
		c.paths[name] = path
	}
	return c
}

// CheckAll verifies all dependencies are available.
// Returns an error listing all missing dependencies.
func (c *Checker) CheckAll() error {
	var missing []string
	for _, dep := range c.dependencies {
		if _, ok := c.Resolve(dep); !ok {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &MissingDepsError{Dependencies: missing}
	}
	return nil
}

// Resolve returns the executable used for name.
func (c *Checker) Resolve(name string) (string, bool) {
	target := name
	if p, ok := c.paths[name]; ok {
		target = p
	}
	resolved, err := c.lookPath(target)
	if err != nil {
		return "", false
	}
	return resolved, true
}

// IsAvailable checks if a single dependency is available.
func (c *Checker) IsAvailable(name string) bool {
	_, ok := c.Resolve(name)
	return ok
}

// CheckAndLog logs the status of every dependency and returns the same
// error as CheckAll.
func (c *Checker) CheckAndLog(log logger.Logger) error {
	var missing []string
	for _, dep := range c.dependencies {
		if path, ok := c.Resolve(dep); ok {
			log.WithFields(logger.Fields{"dependency": dep, "path": path}).Debug("Dependency found")
			continue
		}
		log.WithField("dependency", dep).Warn("Dependency not found in PATH")
		missing = append(missing, dep)
	}
	if len(missing) > 0 {
		return &MissingDepsError{Dependencies: missing}
	}
	return nil
}

// MissingDepsError is returned when required dependencies are missing.
type MissingDepsError struct {
	Dependencies []string
}

func (e *MissingDepsError) Error() string {
	return fmt.Sprintf("missing dependencies: %s", strings.Join(e.Dependencies, ", "))
}

// Has reports whether name is among the missing dependencies.
func (e *MissingDepsError) Has(name string) bool {
	for _, d := range e.Dependencies {
		if d == name {
			return true
		}
	}
	return false
}
