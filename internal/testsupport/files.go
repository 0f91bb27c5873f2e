package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reclaim/internal/media/format"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := int64(chunkSize)
		if remaining < toWrite {
			toWrite = remaining
		}
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// MediaBytes returns size bytes that start with the magic header of f, so
// format detection sees a file of that type.
func MediaBytes(f format.Format, size int) []byte {
	header := MagicFor(f)
	if size < len(header) {
		size = len(header)
	}
	data := make([]byte, size)
	copy(data, header)
	for i := len(header); i < size; i++ {
		data[i] = 0x42
	}
	return data
}

// MagicFor returns a minimal header recognised as f.
func MagicFor(f format.Format) []byte {
	switch f {
	case format.JXL:
		return []byte{0xff, 0x0a}
	case format.MP4:
		return []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}
	case format.MKV:
		return []byte{0x1a, 0x45, 0xdf, 0xa3}
	case format.JPEG:
		return []byte{0xff, 0xd8, 0xff, 0xe0}
	case format.PNG:
		return []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	case format.HEIC:
		return []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}
	default:
		return nil
	}
}
