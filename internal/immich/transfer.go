package immich

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"reclaim/internal/fileutil"
)

// UploadRequest carries the form fields sent with a new asset.
type UploadRequest struct {
	DeviceAssetID  string
	DeviceID       string
	FileCreatedAt  string
	FileModifiedAt string
	Filename       string
}

// Downloaded describes a file written by Download.
type Downloaded struct {
	Size int64
	SHA1 []byte
}

// Download streams the original bytes of asset id into dst. The digest is
// computed while streaming. A partial file is removed on failure.
func (c *Client) Download(ctx context.Context, id, dst string) (Downloaded, error) {
	endpoint := "assets/" + id + "/original"
	resp, err := c.do(ctx, request{method: http.MethodGet, path: endpoint, idempotent: true, transfer: true})
	if err != nil {
		return Downloaded{}, err
	}
	if err := expect(resp, http.MethodGet, endpoint, http.StatusOK); err != nil {
		return Downloaded{}, err
	}
	defer resp.Body.Close()
	written, sum, err := fileutil.WriteStream(dst, resp.Body)
	if err != nil {
		return Downloaded{}, fmt.Errorf("immich download %s: %w", id, err)
	}
	return Downloaded{Size: written, SHA1: sum}, nil
}

type uploadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Upload sends path as a new asset and returns its ID. The body is streamed
// from disk.
func (c *Client) Upload(ctx context.Context, path string, req UploadRequest) (string, error) {
	const endpoint = "assets"
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("immich upload: %w", err)
	}
	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(path)
	}

	// The form is written by a goroutine into a pipe so large videos are
	// never buffered in memory.
	body := func() (io.Reader, string, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeUploadForm(mw, path, filename, req))
		}()
		return pr, mw.FormDataContentType(), nil
	}
	resp, err := c.do(ctx, request{method: http.MethodPost, path: endpoint, body: body, transfer: true})
	if err != nil {
		return "", err
	}
	if err := expect(resp, http.MethodPost, endpoint, http.StatusOK, http.StatusCreated); err != nil {
		return "", err
	}
	var parsed uploadResponse
	if err := decodeJSON(resp, &parsed); err != nil {
		return "", err
	}
	if parsed.Status == "duplicate" {
		return "", fmt.Errorf("%w (%s)", ErrDuplicate, parsed.ID)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("immich upload: response missing asset id")
	}
	return parsed.ID, nil
}

func writeUploadForm(mw *multipart.Writer, path, filename string, req UploadRequest) error {
	fields := []struct{ key, value string }{
		{"deviceAssetId", req.DeviceAssetID},
		{"deviceId", req.DeviceID},
		{"fileCreatedAt", req.FileCreatedAt},
		{"fileModifiedAt", req.FileModifiedAt},
		{"filename", filename},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := mw.WriteField(f.key, f.value); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("assetData", filename)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return mw.Close()
}
