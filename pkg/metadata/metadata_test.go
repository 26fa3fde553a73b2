package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantiadl/pkg/fantia"
	"fantiadl/pkg/storage"
)

func samplePost() *fantia.Post {
	return &fantia.Post{
		ID:       100,
		Title:    "Summer Set",
		Comment:  "bonus inside",
		Status:   "published",
		PostedAt: "Mon, 03 Jun 2024 12:30:00 +0900",
		Fanclub: fantia.Fanclub{
			ID:          55,
			FanclubName: "Atelier (artist)",
			CreatorName: "artist",
		},
		PostContents: []fantia.PostContent{
			{ID: 1, Category: "photo_gallery", Title: "Gallery"},
			{ID: 2, Category: "file", Filename: "pack.zip"},
		},
	}
}

func TestFromPost(t *testing.T) {
	meta := FromPost(samplePost())

	assert.Equal(t, "100", meta.ID)
	assert.Equal(t, "Summer Set", meta.Title)
	assert.Equal(t, "bonus inside", meta.Comment)
	assert.Equal(t, "55", meta.Fanclub.ID)
	assert.Equal(t, "Atelier (artist)", meta.Fanclub.Name)
	assert.Equal(t, "artist", meta.Fanclub.Creator)

	want := time.Date(2024, 6, 3, 12, 30, 0, 0, time.FixedZone("", 9*60*60))
	assert.True(t, meta.PostedAt.Equal(want))
	assert.WithinDuration(t, time.Now(), meta.DownloadedAt, time.Minute)

	require.Len(t, meta.Contents, 2)
	assert.Equal(t, "photo_gallery", meta.Contents[0].Category)
	assert.Equal(t, "pack.zip", meta.Contents[1].Filename)
}

func TestWrite(t *testing.T) {
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	postDir := store.PostDir("55", "100", "Summer Set")
	require.NoError(t, Write(store, postDir, samplePost()))

	data, err := os.ReadFile(filepath.Join(postDir, storage.MetadataFile))
	require.NoError(t, err)

	var meta PostMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "100", meta.ID)
	assert.Equal(t, "Summer Set", meta.Title)
	assert.Len(t, meta.Contents, 2)
}
