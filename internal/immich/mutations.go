package immich

import (
	"context"
	"net/http"
)

type copyRequest struct {
	SourceID    string `json:"sourceId"`
	TargetID    string `json:"targetId"`
	Albums      bool   `json:"albums"`
	Favorite    bool   `json:"favorite"`
	SharedLinks bool   `json:"sharedLinks"`
	Sidecar     bool   `json:"sidecar"`
	Stack       bool   `json:"stack"`
}

// CopyMetadata copies albums, favorite flag, shared links, sidecar, and stack
// membership from one asset to another.
func (c *Client) CopyMetadata(ctx context.Context, from, to string) error {
	const endpoint = "assets/copy"
	body, err := jsonBody(copyRequest{
		SourceID:    from,
		TargetID:    to,
		Albums:      true,
		Favorite:    true,
		SharedLinks: true,
		Sidecar:     true,
		Stack:       true,
	})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, request{method: http.MethodPut, path: endpoint, body: body})
	if err != nil {
		return err
	}
	if err := expect(resp, http.MethodPut, endpoint, http.StatusNoContent, http.StatusOK); err != nil {
		return err
	}
	drain(resp)
	return nil
}

// TrashDelete moves the asset to the server's trash.
func (c *Client) TrashDelete(ctx context.Context, id string) error {
	return c.deleteAssets(ctx, []string{id}, false)
}

// HardDelete removes the asset permanently, bypassing the trash.
func (c *Client) HardDelete(ctx context.Context, id string) error {
	return c.deleteAssets(ctx, []string{id}, true)
}

type deleteRequest struct {
	IDs   []string `json:"ids"`
	Force bool     `json:"force"`
}

func (c *Client) deleteAssets(ctx context.Context, ids []string, force bool) error {
	const endpoint = "assets"
	body, err := jsonBody(deleteRequest{IDs: ids, Force: force})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, request{method: http.MethodDelete, path: endpoint, body: body})
	if err != nil {
		return err
	}
	if err := expect(resp, http.MethodDelete, endpoint, http.StatusNoContent, http.StatusOK); err != nil {
		return err
	}
	drain(resp)
	return nil
}
