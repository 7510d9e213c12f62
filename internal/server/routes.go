package server

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/esiweave/esiweave/internal/logging"
)

// Route maps a request path prefix to an origin base URL.
type Route struct {
	Prefix string `yaml:"prefix"`
	Origin string `yaml:"origin"`
}

type routeFile struct {
	Routes []Route `yaml:"routes"`
}

type compiledRoute struct {
	prefix string
	origin *url.URL
}

// RouteTable resolves request paths to origins. Longest matching prefix
// wins; the default origin, when configured, answers anything the file
// routes do not cover. Reload swaps the file routes atomically, so
// in-flight requests keep the table they resolved against.
type RouteTable struct {
	mu         sync.RWMutex
	path       string
	fileRoutes []compiledRoute
	defaultOrg *url.URL
	logger     logging.Logger
}

// NewRouteTable builds a table from an optional route file and an
// optional default origin URL. At least one must be provided.
func NewRouteTable(path, defaultOrigin string, logger logging.Logger) (*RouteTable, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &RouteTable{path: path, logger: logger.WithComponent("routes")}

	if defaultOrigin != "" {
		u, err := parseOrigin(defaultOrigin)
		if err != nil {
			return nil, fmt.Errorf("default origin: %w", err)
		}
		t.defaultOrg = u
	}
	if path != "" {
		if err := t.Reload(); err != nil {
			return nil, err
		}
	}
	if t.defaultOrg == nil && len(t.fileRoutes) == 0 {
		return nil, fmt.Errorf("no routes configured")
	}
	return t, nil
}

// Reload re-reads the route file and swaps in the new routes.
func (t *RouteTable) Reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("reading route file: %w", err)
	}

	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing route file %s: %w", t.path, err)
	}

	compiled := make([]compiledRoute, 0, len(file.Routes))
	for _, r := range file.Routes {
		if r.Prefix == "" || r.Prefix[0] != '/' {
			return fmt.Errorf("route prefix %q must start with /", r.Prefix)
		}
		u, err := parseOrigin(r.Origin)
		if err != nil {
			return fmt.Errorf("route %s: %w", r.Prefix, err)
		}
		compiled = append(compiled, compiledRoute{prefix: r.Prefix, origin: u})
	}
	// Longest prefix first makes Resolve a linear scan to first match.
	sort.SliceStable(compiled, func(i, j int) bool {
		return len(compiled[i].prefix) > len(compiled[j].prefix)
	})

	t.mu.Lock()
	t.fileRoutes = compiled
	t.mu.Unlock()
	return nil
}

// Resolve returns the origin for a request path.
func (t *RouteTable) Resolve(path string) (*url.URL, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.fileRoutes {
		if len(path) >= len(r.prefix) && path[:len(r.prefix)] == r.prefix {
			return r.origin, true
		}
	}
	if t.defaultOrg != nil {
		return t.defaultOrg, true
	}
	return nil, false
}

// Watch reloads the route file whenever it changes on disk, until ctx
// is cancelled. It watches the containing directory because editors and
// config management tools commonly replace the file rather than write
// it in place.
func (t *RouteTable) Watch(ctx context.Context) error {
	if t.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(t.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := t.Reload(); err != nil {
					t.logger.Error(ctx, err, "route reload failed", "file", t.path)
					continue
				}
				t.logger.Info(ctx, "route table reloaded", "file", t.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				t.logger.Error(ctx, err, "route watcher error")
			}
		}
	}()
	return nil
}

func parseOrigin(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("origin %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("origin %q must be absolute http(s)", raw)
	}
	return u, nil
}
