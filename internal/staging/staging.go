// Package staging manages per-job working directories under the configured
// work root and removes the ones left behind by killed runs.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// jobDirPrefix marks directories owned by reclaim so cleanup never touches
// anything else living under the work root.
const jobDirPrefix = "job-"

// ErrDirInUse is returned when a job directory already exists.
var ErrDirInUse = errors.New("job directory already exists")

// Area is the work root shared by all jobs of a run.
type Area struct {
	root string
}

// NewArea returns an Area rooted at root, creating it if needed.
func NewArea(root string) (*Area, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("staging: work root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create work root: %w", err)
	}
	return &Area{root: root}, nil
}

// Root returns the work root.
func (a *Area) Root() string { return a.root }

// Dir is one job's private working directory.
type Dir struct {
	JobID string
	Path  string
}

// Allocate creates the directory for jobID. It fails if the directory already
// exists, so two jobs can never share one.
func (a *Area) Allocate(jobID string) (*Dir, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" || strings.ContainsAny(jobID, `/\`) {
		return nil, fmt.Errorf("staging: invalid job id %q", jobID)
	}
	path := filepath.Join(a.root, jobDirPrefix+jobID)
	if err := os.Mkdir(path, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirInUse, path)
		}
		return nil, fmt.Errorf("staging: create job directory: %w", err)
	}
	return &Dir{JobID: jobID, Path: path}, nil
}

// File returns a path for name inside the job directory.
func (d *Dir) File(name string) string {
	return filepath.Join(d.Path, name)
}

// Release removes the directory and everything in it.
func (d *Dir) Release() error {
	if d == nil || d.Path == "" {
		return nil
	}
	return os.RemoveAll(d.Path)
}

// JobIDFromDir returns the job ID encoded in a job directory name.
func JobIDFromDir(name string) (string, bool) {
	if !strings.HasPrefix(name, jobDirPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(name, jobDirPrefix)
	return id, id != ""
}
