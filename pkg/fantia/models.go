package fantia

import (
	"time"
)

// PostedAtLayout is the layout Fantia uses for post timestamps
const PostedAtLayout = time.RFC1123Z

// Content categories Fantia declares on post_contents entries
const (
	CategoryPhotoGallery = "photo_gallery"
	CategoryFile         = "file"
	CategoryBlog         = "blog"
	CategoryText         = "text"
)

// PostResponse is the envelope returned by the post detail API
type PostResponse struct {
	Post Post `json:"post"`
}

// Post is one published post with its ordered content blocks
type Post struct {
	ID           int           `json:"id"`
	Title        string        `json:"title"`
	Comment      string        `json:"comment"`
	PostedAt     string        `json:"posted_at"`
	Status       string        `json:"status"`
	Thumb        *Image        `json:"thumb"`
	Fanclub      Fanclub       `json:"fanclub"`
	PostContents []PostContent `json:"post_contents"`
}

// PostedTime parses the post's timestamp; the zero time is returned when the
// server omits or mangles it
func (p *Post) PostedTime() time.Time {
	t, err := time.Parse(PostedAtLayout, p.PostedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PostContent is one typed content block inside a post
type PostContent struct {
	ID                int                `json:"id"`
	Category          string             `json:"category"`
	Title             string             `json:"title"`
	VisibleStatus     string             `json:"visible_status"`
	PostContentPhotos []PostContentPhoto `json:"post_content_photos"`

	// Attachments on their dedicated section
	DownloadURI string `json:"download_uri"`
	Filename    string `json:"filename"`

	// Blog and text bodies; for blogs this is a JSON document of ops
	Comment string `json:"comment"`
}

// PostContentPhoto is one gallery image
type PostContentPhoto struct {
	ID  int   `json:"id"`
	URL Image `json:"url"`
}

// Image holds the original-resolution variant of a served image
type Image struct {
	Original string `json:"original"`
}

// Fanclub identifies a creator's fanclub as embedded in post payloads
type Fanclub struct {
	ID          int    `json:"id"`
	FanclubName string `json:"fanclub_name_with_creator_name"`
	CreatorName string `json:"creator_name"`
}

// TimelineResponse is the envelope returned by the "new posts" timeline API
type TimelineResponse struct {
	Posts []TimelinePost `json:"posts"`
}

// TimelinePost is one listing entry on the account's timeline
type TimelinePost struct {
	ID       int     `json:"id"`
	PostedAt string  `json:"posted_at"`
	Fanclub  Fanclub `json:"fanclub"`
}

// MeFanclubsResponse is the envelope returned by the followed-fanclubs API
type MeFanclubsResponse struct {
	FanclubIDs []int `json:"fanclub_ids"`
}
