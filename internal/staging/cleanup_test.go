package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reclaim/internal/logging"
)

func makeDir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if age > 0 {
		old := time.Now().Add(-age)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("set time: %v", err)
		}
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldJobDirectories(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "job-old")
	makeDir(t, oldDir, 2*time.Hour)
	recentDir := filepath.Join(root, "job-recent")
	makeDir(t, recentDir, 0)
	foreign := filepath.Join(root, "photos-backup")
	makeDir(t, foreign, 48*time.Hour)

	result := CleanStale(context.Background(), root, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldDir {
		t.Fatalf("expected only %s removed, got %v", oldDir, result.Removed)
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("directories without the job prefix must be left alone")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	root := t.TempDir()
	oldFile := filepath.Join(root, "job-file")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, old, old); err != nil {
		t.Fatalf("set time: %v", err)
	}

	result := CleanStale(context.Background(), root, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}
}

func TestCleanOrphanedKeepsActiveJobs(t *testing.T) {
	root := t.TempDir()
	makeDir(t, filepath.Join(root, "job-active"), 0)
	orphan := filepath.Join(root, "job-orphan")
	makeDir(t, orphan, 0)

	result := CleanOrphaned(context.Background(), root, map[string]struct{}{"active": {}}, nil)
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("expected orphan removed, got %v", result.Removed)
	}
	if _, err := os.Stat(filepath.Join(root, "job-active")); err != nil {
		t.Error("active job directory should still exist")
	}
}

func TestAllocateIsExclusive(t *testing.T) {
	area, err := NewArea(filepath.Join(t.TempDir(), "work"))
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	dir, err := area.Allocate("abc")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if filepath.Base(dir.Path) != "job-abc" {
		t.Fatalf("unexpected path %s", dir.Path)
	}
	if _, err := area.Allocate("abc"); !errors.Is(err, ErrDirInUse) {
		t.Fatalf("expected ErrDirInUse, got %v", err)
	}
	if err := os.WriteFile(dir.File("original.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := dir.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(dir.Path); !os.IsNotExist(err) {
		t.Fatal("expected job directory removed")
	}
	if _, err := area.Allocate("../escape"); err == nil {
		t.Fatal("expected invalid job id to be rejected")
	}
}

func TestListDirectories(t *testing.T) {
	root := t.TempDir()
	dir1 := filepath.Join(root, "job-1")
	makeDir(t, dir1, 0)
	makeDir(t, filepath.Join(root, "job-2"), 0)
	makeDir(t, filepath.Join(root, "unrelated"), 0)
	if err := os.WriteFile(filepath.Join(root, "not-a-dir.txt"), []byte("test"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir1, "data.bin"), []byte("12345"), 0o644); err != nil {
		t.Fatal(err)
	}

	dirs, err := ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}
	for _, d := range dirs {
		if d.JobID == "1" && d.Size != 5 {
			t.Errorf("job-1 size = %d, want 5", d.Size)
		}
		if d.ModTime.IsZero() {
			t.Errorf("%s has zero mod time", d.Name)
		}
	}

	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil || dirs != nil {
			t.Errorf("expected nil result for %q, got %v %v", path, dirs, err)
		}
	}
}
