package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gallery-app/apiserver/types"
)

// DefaultMaxUploadBytes is the client-side ceiling on image size.
const DefaultMaxUploadBytes = 5 << 20

// UploadFile is an image to publish.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadImage runs the two-phase upload: it requests a slot, writes the bytes
// straight to object storage, then confirms to create the post. draft.ImageURL
// is set from the slot. A failed storage write is not retried and leaves no post.
func (c *Client) UploadImage(ctx context.Context, file UploadFile, draft types.PostDraft) (types.Post, error) {
	size := int64(len(file.Data))
	if c.maxUploadBytes > 0 && size > c.maxUploadBytes {
		return types.Post{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, c.maxUploadBytes)
	}

	slot, err := c.RequestUploadSlot(ctx, types.UploadRequest{
		Filename:    file.Filename,
		ContentType: file.ContentType,
		Size:        size,
	})
	if err != nil {
		return types.Post{}, err
	}

	if err := c.putObject(ctx, slot, file.Data); err != nil {
		return types.Post{}, err
	}

	draft.ImageURL = slot.PublicURL
	return c.ConfirmUpload(ctx, draft)
}

// putObject writes data to the presigned URL. It does not go through the
// session guard: storage authorizes the URL itself.
func (c *Client) putObject(ctx context.Context, slot types.UploadSlot, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, slot.UploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamStorage, err)
	}
	req.Header.Set("Content-Type", slot.ContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamStorage, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrUpstreamStorage, resp.StatusCode)
	}
	return nil
}
