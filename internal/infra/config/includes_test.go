package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIncludesSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "team.yaml", `
engine:
  search_root: "/mnt/engines"
`)
	path := writeConfigFile(t, dir, "uetools.yaml", `
includes:
  - "team.yaml"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.SearchRoot != "/mnt/engines" {
		t.Errorf("SearchRoot = %q, want /mnt/engines", cfg.Engine.SearchRoot)
	}
}

func TestIncludesGlobPattern(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "conf.d/engine.yaml", "engine:\n  allow_fallback: true\n")
	writeConfigFile(t, dir, "conf.d/tail.yaml", "tail:\n  interval: \"250ms\"\n")
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"conf.d/*.yaml\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Engine.AllowFallback || cfg.Tail.Interval != "250ms" {
		t.Errorf("glob includes not applied: %+v %+v", cfg.Engine, cfg.Tail)
	}
}

func TestIncludesGlobNoMatch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"conf.d/*.yaml\"\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("empty glob should not fail: %v", err)
	}
}

func TestIncludesMainPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "team.yaml", "logger:\n  level: \"debug\"\nengine:\n  search_root: \"/team\"\n")
	path := writeConfigFile(t, dir, "uetools.yaml", `
includes:
  - "team.yaml"
logger:
  level: "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("Logger.Level = %q, main file should win", cfg.Logger.Level)
	}
	if cfg.Engine.SearchRoot != "/team" {
		t.Errorf("SearchRoot = %q, include value should survive", cfg.Engine.SearchRoot)
	}
}

func TestIncludesNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "c.yaml", "server:\n  solution: \"C:\\\\Server\\\\Server.sln\"\n")
	writeConfigFile(t, dir, "b.yaml", "includes:\n  - \"c.yaml\"\n")
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"b.yaml\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Solution != `C:\Server\Server.sln` {
		t.Errorf("Solution = %q", cfg.Server.Solution)
	}
}

func TestIncludesCircularDetection(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "includes:\n  - \"b.yaml\"\n")
	writeConfigFile(t, dir, "b.yaml", "includes:\n  - \"a.yaml\"\n")
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"a.yaml\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "circular include") {
		t.Fatalf("expected circular include error, got %v", err)
	}
}

func TestIncludesSelfReference(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"uetools.yaml\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "circular include") {
		t.Fatalf("expected circular include error, got %v", err)
	}
}

func TestIncludesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"../../../etc/passwd\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected escape error, got %v", err)
	}
}

func TestIncludesFileNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"missing.yaml\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing include")
	}
}

func TestIncludesInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	inc := writeConfigFile(t, dir, "team.yaml", "logger:\n  level: debug\n")
	if err := os.Chmod(inc, 0o666); err != nil {
		t.Fatal(err)
	}
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"team.yaml\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected permission error for world-writable include")
	}
}

func TestIncludesMaxDepth(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i <= maxIncludeDepth+1; i++ {
		writeConfigFile(t, dir, "inc"+strconv.Itoa(i)+".yaml", "includes:\n  - \"inc"+strconv.Itoa(i+1)+".yaml\"\n")
	}
	writeConfigFile(t, dir, "inc"+strconv.Itoa(maxIncludeDepth+2)+".yaml", "")
	path := writeConfigFile(t, dir, "uetools.yaml", "includes:\n  - \"inc0.yaml\"\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "max depth") {
		t.Fatalf("expected max depth error, got %v", err)
	}
}
