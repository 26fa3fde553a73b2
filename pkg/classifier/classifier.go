// Package classifier decomposes a post's detail payload into an ordered
// sequence of typed content blocks.
package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/logger"
)

// Options controls optional block extraction
type Options struct {
	// DownloadThumbnail appends one synthetic FileAttachment for the
	// post thumbnail
	DownloadThumbnail bool
	// ParseExternalLinks extracts ExternalLink blocks from post text,
	// deduplicated by URL within a single post
	ParseExternalLinks bool
}

// Classifier fetches post payloads and maps them onto content blocks
type Classifier struct {
	client *fantia.Client
	opts   Options
	logger logger.Logger
}

// New creates a Classifier
func New(client *fantia.Client, opts Options, log logger.Logger) *Classifier {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Classifier{client: client, opts: opts, logger: log}
}

var urlRe = regexp.MustCompile(`https?://[^\s"'<>\\]+`)

// Classify fetches the post's detail payload and decomposes it into blocks.
// Errors are classified: post_gone for deleted/inaccessible posts (never
// retried, not an item failure), post_fetch for transient network or parse
// failures.
func (c *Classifier) Classify(ctx context.Context, postID string) (*fantia.Post, []Block, error) {
	post, err := c.client.FetchPost(ctx, postID)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindPostGone, errs.KindAuth:
			return nil, nil, err
		default:
			return nil, nil, errs.Wrap(errs.KindPostFetch, err, "failed to fetch post "+postID)
		}
	}

	var blocks []Block
	links := newLinkCollector()

	if c.opts.ParseExternalLinks {
		links.scanText(post.Comment)
	}

	for _, content := range post.PostContents {
		if content.VisibleStatus != "" && content.VisibleStatus != "visible" {
			c.logger.DebugWithFields("Skipping hidden content block", map[string]interface{}{
				"post_id":    postID,
				"content_id": content.ID,
				"status":     content.VisibleStatus,
			})
			continue
		}

		switch content.Category {
		case fantia.CategoryPhotoGallery:
			gallery := PhotoGallery{Title: content.Title}
			for _, photo := range content.PostContentPhotos {
				gallery.URLs = append(gallery.URLs, photo.URL.Original)
			}
			blocks = append(blocks, gallery)

		case fantia.CategoryFile:
			blocks = append(blocks, FileAttachment{
				URL:      c.absolute(content.DownloadURI),
				Filename: content.Filename,
			})

		case fantia.CategoryBlog:
			body, err := c.parseBlogBody(content)
			if err != nil {
				c.logger.WithError(err).WithFields(map[string]interface{}{
					"post_id":    postID,
					"content_id": content.ID,
				}).Warn("Failed to parse blog body, skipping block")
				continue
			}
			if c.opts.ParseExternalLinks {
				for _, item := range body.Items {
					if item.Kind == BlogItemText {
						links.scanText(item.Text)
					}
				}
			}
			blocks = append(blocks, body)

		case fantia.CategoryText:
			// Nothing downloadable; text bodies only contribute links
			if c.opts.ParseExternalLinks {
				links.scanText(content.Comment)
			}

		default:
			// Unknown/future kinds never hard-fail the post
			c.logger.WarnWithFields("Skipping unknown content category", map[string]interface{}{
				"post_id":    postID,
				"content_id": content.ID,
				"category":   content.Category,
			})
		}
	}

	if c.opts.DownloadThumbnail && post.Thumb != nil && post.Thumb.Original != "" {
		blocks = append(blocks, FileAttachment{
			URL:       post.Thumb.Original,
			Thumbnail: true,
		})
	}

	if c.opts.ParseExternalLinks {
		for _, url := range links.ordered {
			blocks = append(blocks, ExternalLink{URL: url})
		}
	}

	return post, blocks, nil
}

// blogOps mirrors the delta-style document blog bodies are stored as
type blogOps struct {
	Ops []blogOp `json:"ops"`
}

type blogOp struct {
	Insert     json.RawMessage `json:"insert"`
	Attributes struct {
		Link string `json:"link"`
	} `json:"attributes"`
}

type blogEmbed struct {
	FantiaImage *struct {
		ID          json.Number `json:"id"`
		URL         string      `json:"url"`
		OriginalURL string      `json:"original_url"`
	} `json:"fantiaImage"`
	FantiaFile *struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
	} `json:"fantiaFile"`
}

// parseBlogBody extracts inline text, images, and files from a blog block's
// ops document in encounter order
func (c *Classifier) parseBlogBody(content fantia.PostContent) (BlogBody, error) {
	var ops blogOps
	if err := json.Unmarshal([]byte(content.Comment), &ops); err != nil {
		return BlogBody{}, errs.Wrap(errs.KindParsing, err, "malformed blog body")
	}

	body := BlogBody{Title: content.Title}
	for _, op := range ops.Ops {
		if len(op.Insert) == 0 {
			continue
		}

		var text string
		if err := json.Unmarshal(op.Insert, &text); err == nil {
			if op.Attributes.Link != "" {
				text = text + " " + op.Attributes.Link
			}
			body.Items = append(body.Items, BlogItem{Kind: BlogItemText, Text: text})
			continue
		}

		var embed blogEmbed
		if err := json.Unmarshal(op.Insert, &embed); err != nil {
			continue
		}
		if embed.FantiaImage != nil {
			url := embed.FantiaImage.OriginalURL
			if url == "" {
				url = embed.FantiaImage.URL
			}
			body.Items = append(body.Items, BlogItem{Kind: BlogItemImage, URL: c.absolute(url)})
		}
		if embed.FantiaFile != nil {
			body.Items = append(body.Items, BlogItem{
				Kind:     BlogItemFile,
				URL:      c.absolute(embed.FantiaFile.URL),
				Filename: embed.FantiaFile.Filename,
			})
		}
	}

	return body, nil
}

// absolute resolves server-relative URIs against the client's base URL
func (c *Classifier) absolute(uri string) string {
	if uri == "" || !strings.HasPrefix(uri, "/") {
		return uri
	}
	return c.client.BaseURL() + uri
}

// linkCollector deduplicates external links while preserving encounter order
type linkCollector struct {
	seen    map[string]bool
	ordered []string
}

func newLinkCollector() *linkCollector {
	return &linkCollector{seen: make(map[string]bool)}
}

func (lc *linkCollector) scanText(text string) {
	for _, url := range urlRe.FindAllString(text, -1) {
		url = strings.TrimRight(url, ".,)")
		if lc.seen[url] {
			continue
		}
		lc.seen[url] = true
		lc.ordered = append(lc.ordered, url)
	}
}
