package mitre

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"seclabel/core"
)

// Parse decodes a catalog document. YAML and JSON are both accepted.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse MITRE catalog: %w", err)
	}
	if len(f.Tactics) == 0 {
		return nil, fmt.Errorf("MITRE catalog has no tactics")
	}
	return newCatalog(f)
}

// LoadFile reads a custom catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MITRE catalog file: %w", err)
	}
	return Parse(data)
}

// Resolver returns the custom catalog named in system config when it is
// enabled and loadable, and the embedded catalog otherwise. Custom files are
// reloaded when their modification time changes.
type Resolver struct {
	fallback *Catalog
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	path    string
	modTime time.Time
	custom  *Catalog
}

// NewResolver creates a resolver backed by the embedded catalog.
func NewResolver(logger *zap.SugaredLogger) *Resolver {
	return &Resolver{fallback: Default(), logger: logger}
}

// Catalog returns the catalog to serve for the given settings.
func (r *Resolver) Catalog(settings core.MitreSettings) *Catalog {
	if !settings.UseCustomMappings || settings.CustomMappingsPath == "" {
		return r.fallback
	}

	info, err := os.Stat(settings.CustomMappingsPath)
	if err != nil {
		r.logger.Warnw("Custom MITRE mappings unavailable, using built-in catalog",
			"path", settings.CustomMappingsPath, "error", err)
		return r.fallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.custom != nil && r.path == settings.CustomMappingsPath && r.modTime.Equal(info.ModTime()) {
		return r.custom
	}

	c, err := LoadFile(settings.CustomMappingsPath)
	if err != nil {
		r.logger.Warnw("Custom MITRE mappings invalid, using built-in catalog",
			"path", settings.CustomMappingsPath, "error", err)
		return r.fallback
	}
	r.path = settings.CustomMappingsPath
	r.modTime = info.ModTime()
	r.custom = c
	r.logger.Infof("Loaded custom MITRE mappings from %s (%d tactics, %d techniques)",
		settings.CustomMappingsPath, len(c.tactics), len(c.techniques))
	return c
}
