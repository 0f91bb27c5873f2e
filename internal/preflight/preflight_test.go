package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reclaim/internal/config"
	"reclaim/internal/immich"
	"reclaim/internal/testsupport"
)

func lowerFreeSpaceMinimum(t *testing.T) {
	t.Helper()
	prev := MinFreeBytes
	MinFreeBytes = 1
	t.Cleanup(func() { MinFreeBytes = prev })
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a 1 byte minimum, got: %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure with an impossible minimum")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reclaim.db")
	if result := CheckLedger(context.Background(), path); !result.Passed {
		t.Fatalf("expected ledger check to pass, got: %s", result.Detail)
	}
	if result := CheckLedger(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for empty ledger path")
	}
}

func TestCheckLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid API key"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"assets":{"items":[],"nextPage":null}}`))
	}))
	defer srv.Close()

	good := immich.New(srv.URL+"/api", "good-key", immich.WithRetry(0, 0))
	if result := CheckLibrary(context.Background(), good); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	bad := immich.New(srv.URL+"/api", "bad-key", immich.WithRetry(0, 0))
	result := CheckLibrary(context.Background(), bad)
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if !strings.Contains(result.Detail, "authentication failed") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckLibrary_Timeout(t *testing.T) {
	result := CheckLibrary(context.Background(), pingFunc(func(context.Context) error {
		return context.DeadlineExceeded
	}))
	if result.Passed || !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_PassesWithStubbedBinaries(t *testing.T) {
	lowerFreeSpaceMinimum(t)
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, pingFunc(func(context.Context) error { return nil }))
	if failed := Failures(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
	names := make(map[string]bool, len(results))
	for _, r := range results {
		names[r.Name] = true
	}
	for _, want := range []string{"Work directory", "Work directory space", "Run ledger", "ImageMagick", "FFprobe", "Immich"} {
		if !names[want] {
			t.Errorf("missing check %q", want)
		}
	}
}

func TestRunAll_ReportsMissingEncoder(t *testing.T) {
	lowerFreeSpaceMinimum(t)
	cfg := testsupport.NewConfig(t)
	cfg.Filter.AssetTypes = []string{config.AssetTypeImage}
	cfg.Tools.Magick = "clearly-not-present-magick"
	cfg.Tools.CJXL = "clearly-not-present-cjxl"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, pingFunc(func(context.Context) error {
		return errors.New("connection refused")
	}))
	failed := Failures(results)
	var names []string
	for _, r := range failed {
		names = append(names, r.Name)
	}
	// cjxl is optional and must not block the run.
	if got := strings.Join(names, ","); got != "ImageMagick,Immich" {
		t.Fatalf("failures = %s", got)
	}
}
