package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func validPaths(t *testing.T) BundlePaths {
	dir := t.TempDir()
	return BundlePaths{
		Command:  writeFile(t, dir, "command.yaml", "prefixes: [\"/\", \"!\"]\n"),
		Pipeline: writeFile(t, dir, "pipeline.yaml", "runner:\n  kind: local\nmax_prompt_tokens: 4000\n"),
		Platform: writeFile(t, dir, "platform.yaml", "bots:\n  - uuid: bot-1\n    adapter_name: discord\n"),
		Provider: writeFile(t, dir, "provider.yaml", "default_model: claude\nmodels:\n  claude:\n    provider: anthropic\n    provider_model_name: claude-3-opus\n"),
		System:   writeFile(t, dir, "system.yaml", "session_concurrency: 2\nlog_level: info\n"),
	}
}

func TestNewLoaderLoadsAllBundles(t *testing.T) {
	l, err := NewLoader(validPaths(t))
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	b := l.Current()
	if b.Command.Prefixes[0] != "/" {
		t.Fatalf("unexpected command bundle: %+v", b.Command)
	}
	if b.Pipeline.Runner.Kind != "local" {
		t.Fatalf("unexpected pipeline bundle: %+v", b.Pipeline)
	}
	if len(b.Platform.Bots) != 1 || b.Platform.Bots[0].UUID != "bot-1" {
		t.Fatalf("unexpected platform bundle: %+v", b.Platform)
	}
	if b.Provider.DefaultModel != "claude" {
		t.Fatalf("unexpected provider bundle: %+v", b.Provider)
	}
	if b.System.SessionConcurrency != 2 {
		t.Fatalf("unexpected system bundle: %+v", b.System)
	}
}

func TestNewLoaderRejectsSchemaViolation(t *testing.T) {
	paths := validPaths(t)
	dir := filepath.Dir(paths.System)
	paths.System = writeFile(t, dir, "system.yaml", "log_level: not-a-real-level\n")

	if _, err := NewLoader(paths); err == nil {
		t.Fatalf("expected a schema validation error for an invalid log_level")
	}
}

func TestReloadKeepsPreviousSnapshotOnFailure(t *testing.T) {
	paths := validPaths(t)
	l, err := NewLoader(paths)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	before := l.Current()

	dir := filepath.Dir(paths.System)
	writeFile(t, dir, "system.yaml", "session_concurrency: not-a-number\n")

	if err := l.Reload(); err == nil {
		t.Fatalf("expected reload to fail on invalid yaml")
	}
	if l.Current() != before {
		t.Fatalf("expected the previous snapshot to remain active after a failed reload")
	}
}

func TestWriteBundleValidatesAndReloads(t *testing.T) {
	paths := validPaths(t)
	l, err := NewLoader(paths)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	next := SystemConfig{SessionConcurrency: 9, LogLevel: "debug"}
	if err := l.WriteBundle("system", next); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if got := l.Current().System.SessionConcurrency; got != 9 {
		t.Fatalf("expected write to take effect, got session_concurrency=%d", got)
	}
}

func TestWriteBundleRejectsInvalidValue(t *testing.T) {
	paths := validPaths(t)
	l, err := NewLoader(paths)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	before := l.Current()

	bad := SystemConfig{LogLevel: "not-a-real-level"}
	if err := l.WriteBundle("system", bad); err == nil {
		t.Fatalf("expected an error writing an invalid system bundle")
	}
	if l.Current() != before {
		t.Fatalf("expected the previous snapshot to remain active after a rejected write")
	}
}

func TestWriteBundleUnknownName(t *testing.T) {
	l, err := NewLoader(validPaths(t))
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	if err := l.WriteBundle("nonexistent", struct{}{}); err == nil {
		t.Fatal("expected an error for an unknown bundle name")
	}
}

func TestWatchReloadsOnFileChange(t *testing.T) {
	paths := validPaths(t)
	l, err := NewLoader(paths)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}

	reloaded := make(chan error, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Watch(ctx, WatchConfig{Debounce: 20 * time.Millisecond, OnReload: func(err error) { reloaded <- err }}); err != nil {
		t.Fatalf("watch: %v", err)
	}

	dir := filepath.Dir(paths.System)
	writeFile(t, dir, "system.yaml", "session_concurrency: 5\nlog_level: warn\n")

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("expected reload to succeed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a reload notification after the file changed")
	}

	if l.Current().System.SessionConcurrency != 5 {
		t.Fatalf("expected reloaded bundle to reflect the file change, got %+v", l.Current().System)
	}
}
