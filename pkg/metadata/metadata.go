// Package metadata serializes post details next to the downloaded files.
package metadata

import (
	"encoding/json"
	"strconv"
	"time"

	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/storage"
)

// PostMetadata is the shape written to each post's metadata.json
type PostMetadata struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Comment string `json:"comment,omitempty"`
	Status  string `json:"status,omitempty"`

	PostedAt     time.Time `json:"posted_at"`
	DownloadedAt time.Time `json:"downloaded_at"`

	Fanclub Fanclub `json:"fanclub"`

	Contents []Content `json:"contents,omitempty"`
}

// Fanclub identifies the creator the post belongs to
type Fanclub struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Creator string `json:"creator,omitempty"`
}

// Content is one content block summary
type Content struct {
	ID       int    `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// FromPost converts an API post payload to PostMetadata
func FromPost(post *fantia.Post) *PostMetadata {
	meta := &PostMetadata{
		ID:           strconv.Itoa(post.ID),
		Title:        post.Title,
		Comment:      post.Comment,
		Status:       post.Status,
		DownloadedAt: time.Now(),
		Fanclub: Fanclub{
			ID:      strconv.Itoa(post.Fanclub.ID),
			Name:    post.Fanclub.FanclubName,
			Creator: post.Fanclub.CreatorName,
		},
	}
	meta.PostedAt = post.PostedTime()
	for _, c := range post.PostContents {
		meta.Contents = append(meta.Contents, Content{
			ID:       c.ID,
			Category: c.Category,
			Title:    c.Title,
			Filename: c.Filename,
		})
	}
	return meta
}

// Write dumps the post's metadata into its directory
func Write(store *storage.Manager, postDir string, post *fantia.Post) error {
	data, err := json.MarshalIndent(FromPost(post), "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindUnknown, err, "failed to marshal post metadata")
	}
	if err := store.SaveBytes(data, storage.MetadataPath(postDir)); err != nil {
		return errs.Wrap(errs.KindItemDownload, err, "failed to write post metadata")
	}
	return nil
}
