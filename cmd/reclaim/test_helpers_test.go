package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reclaim/internal/config"
	"reclaim/internal/preflight"
	"reclaim/internal/testsupport"
)

var clearedEnv = []string{
	"IMMICH_API_BASE", "IMMICH_API_KEY", "DRY_RUN", "CONCURRENCY", "MAX_ASSETS",
	"ASSET_TYPES", "INCLUDE_ARCHIVED", "INCLUDE_DELETED", "FILTER_DATE_AFTER",
	"FILTER_DATE_BEFORE", "WORKDIR",
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	for _, name := range clearedEnv {
		t.Setenv(name, "")
	}
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	configPath := filepath.Join(base, "reclaim.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[immich]
api_base = %q
api_key = %q
retry_backoff = 1

[paths]
work_dir = %q
log_dir = %q
ledger_path = %q

[logging]
level = "error"
`,
		cfg.Immich.APIBase,
		cfg.Immich.APIKey,
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.LedgerPath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func lowerFreeSpaceMinimum(t *testing.T) {
	t.Helper()
	prev := preflight.MinFreeBytes
	preflight.MinFreeBytes = 1
	t.Cleanup(func() { preflight.MinFreeBytes = prev })
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
