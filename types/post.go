package types

import (
	"strings"
	"time"
)

// Post represents an uploaded image and its metadata.
type Post struct {
	// ID is the unique identifier of the post.
	ID int `json:"id" db:"id"`

	// UserID identifies the owner of the post.
	UserID int `json:"user_id" db:"user_id"`

	// ImageURL is the public read URL of the image in object storage.
	ImageURL string `json:"image_url" db:"image_url"`

	Title   string `json:"title" db:"title"`
	Caption string `json:"caption" db:"caption"`

	// RawTags is the comma-separated tag string as it was submitted.
	RawTags string `json:"-" db:"tags"`

	// Tags is RawTags split on commas, trimmed, with empty entries dropped.
	// It is derived when the post is read.
	Tags []string `json:"tags"`

	// Views and Downloads only ever grow.
	Views     int `json:"views" db:"views"`
	Downloads int `json:"downloads" db:"downloads"`

	// Username and UserFullName are joined from the owner's account.
	Username     string `json:"username,omitempty"`
	UserFullName string `json:"user_full_name,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NormalizeTags splits a comma-separated tag string into a trimmed list
// without empty entries. It returns an empty, non-nil slice when there are
// no tags so that responses always carry a JSON list.
func NormalizeTags(raw string) []string {
	tags := []string{}
	for _, part := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// PostDraft carries the metadata submitted when confirming an upload.
type PostDraft struct {
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
	Title    string `json:"title"`
	Tags     string `json:"tags"`
}

// ViewCount is returned by the view counter endpoint.
type ViewCount struct {
	Views int `json:"views"`
}

// DownloadCount is returned by the download counter endpoint.
type DownloadCount struct {
	Downloads int `json:"downloads"`
}
