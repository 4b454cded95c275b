// Package route collects the management endpoints (health, readiness,
// metrics) contributed by plugins. They are mounted either on the main
// router or on a dedicated management listener.
package route

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gin-gonic/gin"
)

// Loader mounts routes on a gin engine.
type Loader func(r *gin.Engine) error

// Plugin is a named group of management routes. Lower Order mounts first.
type Plugin struct {
	Name   string
	Order  int
	Loader Loader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a management route plugin. Called from init().
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
	slices.SortStableFunc(plugins, func(a, b Plugin) int { return a.Order - b.Order })
}

// Names lists registered plugins in mount order.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Mount applies every registered plugin to r.
func Mount(r *gin.Engine) error {
	mu.Lock()
	snapshot := slices.Clone(plugins)
	mu.Unlock()
	for _, p := range snapshot {
		if err := p.Loader(r); err != nil {
			return fmt.Errorf("mount %s routes: %w", p.Name, err)
		}
	}
	return nil
}
