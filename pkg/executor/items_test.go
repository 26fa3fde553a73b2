package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fantiadl/pkg/classifier"
	"fantiadl/pkg/fantia"
)

func mixedBlocks() []classifier.Block {
	return []classifier.Block{
		classifier.PhotoGallery{Title: "Gallery", URLs: []string{
			"https://cdn.test/a.jpg?Key-Pair-Id=xyz",
			"https://cdn.test/b.png",
		}},
		classifier.FileAttachment{URL: "https://cdn.test/pack.zip", Filename: "pack.zip"},
		classifier.BlogBody{Items: []classifier.BlogItem{
			{Kind: classifier.BlogItemText, Text: "hello"},
			{Kind: classifier.BlogItemImage, URL: "https://cdn.test/inline.png"},
			{Kind: classifier.BlogItemFile, URL: "https://cdn.test/doc.pdf", Filename: "doc.pdf"},
		}},
		classifier.ExternalLink{URL: "https://example.com/bonus"},
	}
}

func TestBuildItemsPositionalNames(t *testing.T) {
	post := &fantia.Post{ID: 100, Fanclub: fantia.Fanclub{ID: 55}}

	items, links := BuildItems(post, mixedBlocks(), BuildOptions{})

	require.Len(t, items, 5)
	assert.Equal(t, "000_000.jpg", items[0].TargetName)
	assert.Equal(t, "000_001.png", items[1].TargetName)
	assert.Equal(t, "001_000.zip", items[2].TargetName)
	// Blog items keep their in-body index; text items yield nothing
	assert.Equal(t, "002_001.png", items[3].TargetName)
	assert.Equal(t, "002_002.pdf", items[4].TargetName)

	assert.Equal(t, ItemPhoto, items[0].Kind)
	assert.Equal(t, ItemFile, items[2].Kind)
	assert.Equal(t, ItemBlogImage, items[3].Kind)
	assert.Equal(t, ItemBlogFile, items[4].Kind)

	assert.Equal(t, []string{"https://example.com/bonus"}, links)
}

func TestBuildItemsServerFilenames(t *testing.T) {
	post := &fantia.Post{ID: 100}

	items, _ := BuildItems(post, mixedBlocks(), BuildOptions{UseServerFilenames: true})

	require.Len(t, items, 5)
	// Gallery photos carry no server name and keep positional naming
	assert.Equal(t, "000_000.jpg", items[0].TargetName)
	assert.Equal(t, "pack.zip", items[2].TargetName)
	assert.Equal(t, "doc.pdf", items[4].TargetName)
}

func TestBuildItemsThumbnail(t *testing.T) {
	post := &fantia.Post{ID: 100}
	blocks := []classifier.Block{
		classifier.FileAttachment{URL: "https://cdn.test/t.webp", Thumbnail: true},
	}

	items, _ := BuildItems(post, blocks, BuildOptions{})
	require.Len(t, items, 1)
	assert.Equal(t, "thumb.webp", items[0].TargetName)
	assert.Equal(t, ItemThumbnail, items[0].Kind)
}

func TestBuildItemsSkipsEmptyURLs(t *testing.T) {
	post := &fantia.Post{ID: 100}
	blocks := []classifier.Block{
		classifier.PhotoGallery{URLs: []string{"", "https://cdn.test/only.jpg"}},
		classifier.FileAttachment{},
	}

	items, _ := BuildItems(post, blocks, BuildOptions{})
	require.Len(t, items, 1)
	assert.Equal(t, "https://cdn.test/only.jpg", items[0].SourceURL)
}

func TestExtFromURL(t *testing.T) {
	assert.Equal(t, ".jpg", extFromURL("https://cdn.test/x.jpg"))
	assert.Equal(t, ".png", extFromURL("https://cdn.test/dir/x.png?sig=abc.def"))
	assert.Equal(t, "", extFromURL("https://cdn.test/noext"))
	assert.Equal(t, "", extFromURL("://bad"))
}
