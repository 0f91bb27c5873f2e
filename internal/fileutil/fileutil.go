package fileutil

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // library checksums are SHA-1
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrChecksumMismatch reports a stream whose digest differs from the expected value.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// WriteStream copies r into path (created or truncated) and returns the
// number of bytes written and their SHA-1 digest. A partially written file is
// removed on error.
func WriteStream(path string, r io.Reader) (int64, []byte, error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, nil, err
	}
	hasher := sha1.New() //nolint:gosec
	written, err := io.Copy(io.MultiWriter(out, hasher), r)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return 0, nil, err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return 0, nil, err
	}
	return written, hasher.Sum(nil), nil
}

// MatchChecksum compares a digest with an expected value encoded as base64
// (the library's format) or hex. An empty expectation always matches.
func MatchChecksum(sum []byte, expected string) error {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return nil
	}
	var want []byte
	if decoded, err := base64.StdEncoding.DecodeString(expected); err == nil && len(decoded) == len(sum) {
		want = decoded
	} else if decoded, err := hex.DecodeString(expected); err == nil && len(decoded) == len(sum) {
		want = decoded
	} else {
		return fmt.Errorf("unrecognized checksum encoding %q", expected)
	}
	if !bytes.Equal(sum, want) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, base64.StdEncoding.EncodeToString(sum))
	}
	return nil
}

// Size returns the size of the file at path.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
