package executor

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"fantiadl/pkg/classifier"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/storage"
)

// ItemKind tags what part of a post an item came from
type ItemKind string

const (
	ItemPhoto     ItemKind = "photo"
	ItemFile      ItemKind = "file"
	ItemBlogImage ItemKind = "blog_image"
	ItemBlogFile  ItemKind = "blog_file"
	ItemThumbnail ItemKind = "thumbnail"
)

// DownloadItem is one planned fetch with a name fixed before dispatch, so
// concurrent execution order never changes where anything lands
type DownloadItem struct {
	SourceURL string
	// TargetName is the file name inside the post directory
	TargetName string
	Kind       ItemKind
	// BlockIndex and ItemIndex are the item's static position in the
	// post's block sequence
	BlockIndex int
	ItemIndex  int
	// ServerFilename is the name the server reported, when any
	ServerFilename string
}

// BuildOptions controls item naming
type BuildOptions struct {
	// UseServerFilenames names files after the sanitized server-reported
	// filename instead of positional names
	UseServerFilenames bool
}

// BuildItems flattens a post's blocks into the ordered download plan.
// ExternalLink blocks carry no download and are returned separately as URLs.
func BuildItems(post *fantia.Post, blocks []classifier.Block, opts BuildOptions) (items []DownloadItem, links []string) {
	for bi, block := range blocks {
		switch b := block.(type) {
		case classifier.PhotoGallery:
			for ii, u := range b.URLs {
				if u == "" {
					continue
				}
				items = append(items, DownloadItem{
					SourceURL:  u,
					TargetName: positionalName(bi, ii, u, "", opts),
					Kind:       ItemPhoto,
					BlockIndex: bi,
					ItemIndex:  ii,
				})
			}

		case classifier.FileAttachment:
			if b.URL == "" {
				continue
			}
			kind := ItemFile
			name := positionalName(bi, 0, b.URL, b.Filename, opts)
			if b.Thumbnail {
				kind = ItemThumbnail
				name = "thumb" + extFromURL(b.URL)
			}
			items = append(items, DownloadItem{
				SourceURL:      b.URL,
				TargetName:     name,
				Kind:           kind,
				BlockIndex:     bi,
				ServerFilename: b.Filename,
			})

		case classifier.BlogBody:
			for ii, item := range b.Items {
				switch item.Kind {
				case classifier.BlogItemImage:
					items = append(items, DownloadItem{
						SourceURL:  item.URL,
						TargetName: positionalName(bi, ii, item.URL, "", opts),
						Kind:       ItemBlogImage,
						BlockIndex: bi,
						ItemIndex:  ii,
					})
				case classifier.BlogItemFile:
					items = append(items, DownloadItem{
						SourceURL:      item.URL,
						TargetName:     positionalName(bi, ii, item.URL, item.Filename, opts),
						Kind:           ItemBlogFile,
						BlockIndex:     bi,
						ItemIndex:      ii,
						ServerFilename: item.Filename,
					})
				}
			}

		case classifier.ExternalLink:
			links = append(links, b.URL)
		}
	}
	return items, links
}

// positionalName derives the deterministic local name for an item
func positionalName(blockIndex, itemIndex int, sourceURL, serverFilename string, opts BuildOptions) string {
	if opts.UseServerFilenames && serverFilename != "" {
		return storage.SanitizeFilename(serverFilename)
	}
	return fmt.Sprintf("%03d_%03d%s", blockIndex, itemIndex, extFromURL(sourceURL))
}

// extFromURL extracts the file extension from a URL path, ignoring the query
func extFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 8 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

// TargetPath joins the post directory and the item's name
func (d DownloadItem) TargetPath(postDir string) string {
	return filepath.Join(postDir, d.TargetName)
}
