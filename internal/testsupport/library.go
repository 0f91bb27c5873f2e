package testsupport

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // matches the library checksum
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"reclaim/internal/fileutil"
	"reclaim/internal/immich"
	"reclaim/internal/services"
)

// Library operations that can be made to fail.
const (
	OpPing         = "ping"
	OpList         = "list"
	OpDownload     = "download"
	OpUpload       = "upload"
	OpCopyMetadata = "copy_metadata"
	OpVerify       = "verify"
	OpTrash        = "trash"
	OpHardDelete   = "hard_delete"
)

// LibraryAsset is one asset held by FakeLibrary.
type LibraryAsset struct {
	Asset   immich.Asset
	Content []byte
	Trashed bool
	// MetadataFrom is the asset whose metadata was copied onto this one.
	MetadataFrom string
	// Upload is the form the asset was uploaded with, for replacements.
	Upload *immich.UploadRequest
}

// FakeLibrary is an in-memory library safe for concurrent use. New asset IDs
// are "new-<original id>" so concurrent runs stay deterministic.
type FakeLibrary struct {
	mu       sync.Mutex
	assets   map[string]*LibraryAsset
	order    []string
	failures map[string]error
	calls    []string
}

// NewFakeLibrary returns an empty library.
func NewFakeLibrary() *FakeLibrary {
	return &FakeLibrary{
		assets:   make(map[string]*LibraryAsset),
		failures: make(map[string]error),
	}
}

// Add stores an asset with content. The checksum is filled in when empty and
// the EXIF size is set to the content length.
func (l *FakeLibrary) Add(asset immich.Asset, content []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if asset.Checksum == "" {
		sum := sha1.Sum(content) //nolint:gosec
		asset.Checksum = base64.StdEncoding.EncodeToString(sum[:])
	}
	if asset.ExifInfo == nil {
		asset.ExifInfo = &immich.ExifInfo{FileSizeInByte: int64(len(content))}
	}
	if _, ok := l.assets[asset.ID]; !ok {
		l.order = append(l.order, asset.ID)
	}
	l.assets[asset.ID] = &LibraryAsset{Asset: asset, Content: append([]byte(nil), content...)}
}

// Fail makes op fail with err for the given asset ID. An empty ID fails op for
// every asset. For upload the ID is the original asset's; for verify and hard
// delete it is the new asset's.
func (l *FakeLibrary) Fail(op, id string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op+"/"+id] = err
}

func (l *FakeLibrary) failure(op, id string) error {
	if err, ok := l.failures[op+"/"+id]; ok {
		return err
	}
	return l.failures[op+"/"]
}

func (l *FakeLibrary) call(op, id string) error {
	l.calls = append(l.calls, op+" "+id)
	return l.failure(op, id)
}

// Calls returns every recorded call as "op id", in call order.
func (l *FakeLibrary) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// CallsFor returns the calls that mention id, in call order.
func (l *FakeLibrary) CallsFor(id string) []string {
	var out []string
	for _, c := range l.Calls() {
		if strings.HasSuffix(c, " "+id) {
			out = append(out, c)
		}
	}
	return out
}

// Get returns a copy of the stored asset.
func (l *FakeLibrary) Get(id string) (LibraryAsset, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.assets[id]
	if !ok {
		return LibraryAsset{}, false
	}
	return *a, true
}

// IDs lists every stored asset ID, sorted.
func (l *FakeLibrary) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.assets))
	for id := range l.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Ping is the connection test.
func (l *FakeLibrary) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.call(OpPing, "")
}

// ListAssets yields assets of filter.Type in insertion order.
func (l *FakeLibrary) ListAssets(ctx context.Context, filter immich.SearchFilter) iter.Seq2[immich.Asset, error] {
	return func(yield func(immich.Asset, error) bool) {
		l.mu.Lock()
		if err := l.call(OpList, filter.Type); err != nil {
			l.mu.Unlock()
			yield(immich.Asset{}, err)
			return
		}
		var matched []immich.Asset
		for _, id := range l.order {
			a, ok := l.assets[id]
			if !ok || a.Asset.Type != filter.Type {
				continue
			}
			if a.Trashed && !filter.WithDeleted {
				continue
			}
			if a.Asset.IsArchived && !filter.WithArchived {
				continue
			}
			asset := a.Asset
			asset.IsTrashed = a.Trashed
			matched = append(matched, asset)
		}
		l.mu.Unlock()

		for _, asset := range matched {
			if err := ctx.Err(); err != nil {
				yield(immich.Asset{}, err)
				return
			}
			if !yield(asset, nil) {
				return
			}
		}
	}
}

// Download writes the asset content to dst.
func (l *FakeLibrary) Download(ctx context.Context, id, dst string) (immich.Downloaded, error) {
	l.mu.Lock()
	err := l.call(OpDownload, id)
	a, ok := l.assets[id]
	var content []byte
	if ok {
		content = append([]byte(nil), a.Content...)
	}
	l.mu.Unlock()

	if err != nil {
		return immich.Downloaded{}, err
	}
	if !ok {
		return immich.Downloaded{}, services.Wrap(services.ErrNotFound, "immich", "download", id, nil)
	}
	if err := ctx.Err(); err != nil {
		return immich.Downloaded{}, err
	}
	size, sum, err := fileutil.WriteStream(dst, bytes.NewReader(content))
	if err != nil {
		return immich.Downloaded{}, err
	}
	return immich.Downloaded{Size: size, SHA1: sum}, nil
}

// Upload stores the file as a new asset with ID "new-<original id>".
func (l *FakeLibrary) Upload(ctx context.Context, path string, req immich.UploadRequest) (string, error) {
	original := req.DeviceAssetID
	if i := strings.LastIndex(original, "-"); i > 0 {
		original = original[:i]
	}
	content, readErr := os.ReadFile(path)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.call(OpUpload, original); err != nil {
		return "", err
	}
	if readErr != nil {
		return "", readErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "new-" + original
	if _, exists := l.assets[id]; exists {
		return "", fmt.Errorf("%w: %s", immich.ErrDuplicate, id)
	}
	assetType := immich.TypeVideo
	if strings.EqualFold(filepath.Ext(req.Filename), ".jxl") {
		assetType = immich.TypeImage
	}
	sum := sha1.Sum(content) //nolint:gosec
	uploaded := req
	l.assets[id] = &LibraryAsset{
		Asset: immich.Asset{
			ID:               id,
			Type:             assetType,
			OriginalFileName: req.Filename,
			DeviceAssetID:    req.DeviceAssetID,
			DeviceID:         req.DeviceID,
			FileCreatedAt:    req.FileCreatedAt,
			FileModifiedAt:   req.FileModifiedAt,
			Checksum:         base64.StdEncoding.EncodeToString(sum[:]),
			ExifInfo:         &immich.ExifInfo{FileSizeInByte: int64(len(content))},
		},
		Content: content,
		Upload:  &uploaded,
	}
	l.order = append(l.order, id)
	return id, nil
}

// CopyMetadata records the metadata source on the target asset.
func (l *FakeLibrary) CopyMetadata(_ context.Context, from, to string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.call(OpCopyMetadata, from); err != nil {
		return err
	}
	target, ok := l.assets[to]
	if !ok {
		return services.Wrap(services.ErrNotFound, "immich", "copy metadata", to, nil)
	}
	if _, ok := l.assets[from]; !ok {
		return services.Wrap(services.ErrNotFound, "immich", "copy metadata", from, nil)
	}
	target.MetadataFrom = from
	return nil
}

// VerifyAccessible fails for unknown IDs.
func (l *FakeLibrary) VerifyAccessible(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.call(OpVerify, id); err != nil {
		return err
	}
	if _, ok := l.assets[id]; !ok {
		return services.Wrap(services.ErrNotFound, "immich", "verify", id, nil)
	}
	return nil
}

// TrashDelete moves the asset to the trash.
func (l *FakeLibrary) TrashDelete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.call(OpTrash, id); err != nil {
		return err
	}
	a, ok := l.assets[id]
	if !ok {
		return services.Wrap(services.ErrNotFound, "immich", "trash", id, nil)
	}
	a.Trashed = true
	return nil
}

// HardDelete removes the asset permanently.
func (l *FakeLibrary) HardDelete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.call(OpHardDelete, id); err != nil {
		return err
	}
	if _, ok := l.assets[id]; !ok {
		return services.Wrap(services.ErrNotFound, "immich", "hard delete", id, nil)
	}
	delete(l.assets, id)
	return nil
}

// ErrInjected is a convenient failure for Fail.
var ErrInjected = errors.New("injected failure")
