package types

import "time"

// UploadSlot is a single-use, time-limited authorization to write one object
// directly to object storage. Slots are not persisted.
type UploadSlot struct {
	// UploadURL is the presigned URL the client PUTs the image bytes to.
	UploadURL string `json:"upload_url"`

	// Key is the object key the image will be stored under.
	Key string `json:"key"`

	// PublicURL is the read URL of the object once the upload completes.
	// Clients pass it back when confirming the upload.
	PublicURL string `json:"public_url"`

	// ContentType must be sent as the Content-Type header of the PUT.
	ContentType string `json:"content_type"`

	// ExpiresAt is when UploadURL stops being accepted by storage.
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadRequest asks for an upload slot.
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	// Size is the declared byte size. It is optional and never verified
	// against the stored object.
	Size int64 `json:"size,omitempty"`
}
