package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := "[database]\npath = \"" + filepath.ToSlash(filepath.Join(dir, "cli.db")) + "\"\n\n[log]\nlevel = \"error\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	if got := run(t, "version"); got != "debatehub dev\n" {
		t.Fatalf("version = %q", got)
	}
}

func TestSeedResolveExport(t *testing.T) {
	cfg := writeConfig(t)

	if got := run(t, "--config", cfg, "seed"); !strings.Contains(got, "5 debate(s)") {
		t.Fatalf("first seed = %q", got)
	}
	if got := run(t, "--config", cfg, "seed"); !strings.Contains(got, "0 debate(s)") {
		t.Fatalf("second seed = %q", got)
	}
	if got := run(t, "--config", cfg, "resolve"); got != "resolved 0 debate(s)\n" {
		t.Fatalf("resolve = %q", got)
	}

	out := filepath.Join(t.TempDir(), "completed.jsonl")
	run(t, "--config", cfg, "export", "--out", out)
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Fatalf("nothing is completed yet, got %s", data)
	}
}

func TestExportMissingDebate(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--config", writeConfig(t), "export", "nope"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an error for an unknown debate")
	}
}
