package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Loader owns the five config bundle file paths and the currently active,
// validated Bundles. Reload swaps a freshly loaded and validated snapshot
// in atomically, so in-flight queries never observe a half-updated
// configuration.
type Loader struct {
	paths   BundlePaths
	current atomic.Pointer[Bundles]
}

// BundlePaths names the YAML file backing each of the five bundles.
type BundlePaths struct {
	Command  string
	Pipeline string
	Platform string
	Provider string
	System   string
}

// NewLoader builds a Loader and performs the initial load. A load failure
// at boot is fatal.
func NewLoader(paths BundlePaths) (*Loader, error) {
	l := &Loader{paths: paths}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the active bundle snapshot. Safe for concurrent use;
// callers should take one reference per query rather than re-reading
// mid-query, so each query sees an immutable configuration.
func (l *Loader) Current() *Bundles {
	return l.current.Load()
}

// Reload re-reads and re-validates every bundle file and, only if all five
// succeed, swaps the new snapshot in atomically. A failure leaves the
// previously active snapshot untouched.
func (l *Loader) Reload() error {
	next := &Bundles{}

	if err := loadBundle(l.paths.Command, "command", &next.Command); err != nil {
		return err
	}
	if err := loadBundle(l.paths.Pipeline, "pipeline", &next.Pipeline); err != nil {
		return err
	}
	if err := loadBundle(l.paths.Platform, "platform", &next.Platform); err != nil {
		return err
	}
	if err := loadBundle(l.paths.Provider, "provider", &next.Provider); err != nil {
		return err
	}
	if err := loadBundle(l.paths.System, "system", &next.System); err != nil {
		return err
	}

	l.current.Store(next)
	return nil
}

// WriteBundle marshals v as YAML and writes it to the named bundle's
// configured path, then reloads every bundle so the write is validated
// before it takes effect. Used by the control plane's settings-write
// routes; an invalid write leaves the previously active snapshot in
// place, same as a bad Reload triggered by the fsnotify watcher.
func (l *Loader) WriteBundle(name string, v any) error {
	path, err := l.pathFor(name)
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("config: no path configured for %s bundle", name)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: encoding %s bundle: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s bundle %q: %w", name, path, err)
	}
	return l.Reload()
}

func (l *Loader) pathFor(name string) (string, error) {
	switch name {
	case "command":
		return l.paths.Command, nil
	case "pipeline":
		return l.paths.Pipeline, nil
	case "platform":
		return l.paths.Platform, nil
	case "provider":
		return l.paths.Provider, nil
	case "system":
		return l.paths.System, nil
	default:
		return "", fmt.Errorf("config: unknown bundle %q", name)
	}
}

// loadBundle reads path as YAML into out, then re-marshals the decoded
// value through JSON to validate it against the named bundle's schema
// (YAML's richer type set doesn't always match JSON Schema's expectations,
// so validation always happens on the JSON projection).
func loadBundle(path, bundleName string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s bundle %q: %w", bundleName, path, err)
	}

	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("config: parsing %s bundle %q: %w", bundleName, path, err)
	}
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("config: re-encoding %s bundle %q: %w", bundleName, path, err)
	}
	var asAny any
	if err := json.Unmarshal(jsonBytes, &asAny); err != nil {
		return fmt.Errorf("config: decoding %s bundle %q for validation: %w", bundleName, path, err)
	}
	if err := Validate(bundleName, asAny); err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: decoding %s bundle %q into struct: %w", bundleName, path, err)
	}
	return nil
}
