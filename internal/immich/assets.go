package immich

import (
	"context"
	"iter"
	"net/http"
	"path"
	"strings"
)

// Asset types used by the search API.
const (
	TypeImage = "IMAGE"
	TypeVideo = "VIDEO"
)

// Asset is the subset of an Immich asset the pipeline reads.
type Asset struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	OriginalFileName string    `json:"originalFileName"`
	OriginalPath     string    `json:"originalPath"`
	OriginalMimeType string    `json:"originalMimeType"`
	DeviceAssetID    string    `json:"deviceAssetId"`
	DeviceID         string    `json:"deviceId"`
	FileCreatedAt    string    `json:"fileCreatedAt"`
	FileModifiedAt   string    `json:"fileModifiedAt"`
	Checksum         string    `json:"checksum"`
	IsArchived       bool      `json:"isArchived"`
	IsTrashed        bool      `json:"isTrashed"`
	ExifInfo         *ExifInfo `json:"exifInfo,omitempty"`
}

// ExifInfo carries the fields of the asset's EXIF block used for reporting.
type ExifInfo struct {
	FileSizeInByte int64 `json:"fileSizeInByte"`
}

// FileSize returns the size reported by the server, or 0 when unknown.
func (a Asset) FileSize() int64 {
	if a.ExifInfo == nil {
		return 0
	}
	return a.ExifInfo.FileSizeInByte
}

// Stem is the original file name without its extension.
func (a Asset) Stem() string {
	name := a.OriginalFileName
	if name == "" {
		name = path.Base(a.OriginalPath)
	}
	return strings.TrimSuffix(name, path.Ext(name))
}

// Extension is the lowercased extension of the original file name, without
// the dot.
func (a Asset) Extension() string {
	name := a.OriginalFileName
	if name == "" {
		name = a.OriginalPath
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
}

// SearchFilter narrows a metadata search to one asset type.
type SearchFilter struct {
	Type         string
	WithArchived bool
	WithDeleted  bool
	// TakenAfter and TakenBefore are ISO 8601 timestamps; empty means unbounded.
	TakenAfter  string
	TakenBefore string
}

type searchRequest struct {
	Type         string `json:"type"`
	Page         int    `json:"page"`
	Size         int    `json:"size"`
	Order        string `json:"order"`
	WithArchived bool   `json:"withArchived"`
	WithDeleted  bool   `json:"withDeleted"`
	TakenAfter   string `json:"takenAfter,omitempty"`
	TakenBefore  string `json:"takenBefore,omitempty"`
}

type searchResponse struct {
	Assets struct {
		Items    []Asset `json:"items"`
		NextPage *string `json:"nextPage"`
	} `json:"assets"`
}

// SearchPage fetches one page (1-based) of assets matching filter, oldest first.
func (c *Client) SearchPage(ctx context.Context, filter SearchFilter, page, size int) ([]Asset, bool, error) {
	const endpoint = "search/metadata"
	body, err := jsonBody(searchRequest{
		Type:         filter.Type,
		Page:         page,
		Size:         size,
		Order:        "asc",
		WithArchived: filter.WithArchived,
		WithDeleted:  filter.WithDeleted,
		TakenAfter:   filter.TakenAfter,
		TakenBefore:  filter.TakenBefore,
	})
	if err != nil {
		return nil, false, err
	}
	// Search is read-only, so it is retried like a GET.
	resp, err := c.do(ctx, request{method: http.MethodPost, path: endpoint, body: body, idempotent: true})
	if err != nil {
		return nil, false, err
	}
	if err := expect(resp, http.MethodPost, endpoint, http.StatusOK); err != nil {
		return nil, false, err
	}
	var parsed searchResponse
	if err := decodeJSON(resp, &parsed); err != nil {
		return nil, false, err
	}
	items := parsed.Assets.Items
	more := len(items) == size
	if parsed.Assets.NextPage != nil {
		more = more || strings.TrimSpace(*parsed.Assets.NextPage) != ""
	}
	return items, more && len(items) > 0, nil
}

// ListAssets lazily pages through every asset matching filter. Iteration
// stops after the first error, which is yielded once.
func (c *Client) ListAssets(ctx context.Context, filter SearchFilter) iter.Seq2[Asset, error] {
	return func(yield func(Asset, error) bool) {
		for page := 1; ; page++ {
			items, more, err := c.SearchPage(ctx, filter, page, c.pageSize)
			if err != nil {
				yield(Asset{}, err)
				return
			}
			for _, asset := range items {
				if !yield(asset, nil) {
					return
				}
			}
			if !more {
				return
			}
		}
	}
}

// Ping checks connectivity and API key permissions with a one-item search.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.SearchPage(ctx, SearchFilter{Type: TypeImage}, 1, 1)
	return err
}

// GetAsset fetches one asset by ID.
func (c *Client) GetAsset(ctx context.Context, id string) (Asset, error) {
	endpoint := "assets/" + id
	resp, err := c.do(ctx, request{method: http.MethodGet, path: endpoint, idempotent: true})
	if err != nil {
		return Asset{}, err
	}
	if err := expect(resp, http.MethodGet, endpoint, http.StatusOK); err != nil {
		return Asset{}, err
	}
	var asset Asset
	if err := decodeJSON(resp, &asset); err != nil {
		return Asset{}, err
	}
	return asset, nil
}

// VerifyAccessible confirms the asset exists and is readable.
func (c *Client) VerifyAccessible(ctx context.Context, id string) error {
	_, err := c.GetAsset(ctx, id)
	return err
}
