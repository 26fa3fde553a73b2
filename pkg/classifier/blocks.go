package classifier

// Block is one typed chunk of a post's body. Order is preserved from the
// source payload and drives deterministic local naming downstream.
type Block interface {
	blockKind() string
}

// PhotoGallery is an ordered set of gallery images
type PhotoGallery struct {
	Title string
	URLs  []string
}

// FileAttachment is a standalone downloadable file. Thumbnail marks the
// synthetic block appended when thumbnail downloading is enabled.
type FileAttachment struct {
	URL       string
	Filename  string
	Thumbnail bool
}

// BlogBody is a rich-text body with inline embeds in encounter order
type BlogBody struct {
	Title string
	Items []BlogItem
}

// BlogItemKind tags one inline element of a blog body
type BlogItemKind string

const (
	BlogItemText  BlogItemKind = "text"
	BlogItemImage BlogItemKind = "image"
	BlogItemFile  BlogItemKind = "file"
)

// BlogItem is one inline element of a blog body
type BlogItem struct {
	Kind     BlogItemKind
	Text     string
	URL      string
	Filename string
}

// ExternalLink is a reference to an off-site URL found in post text,
// materialized only when external-link parsing is enabled
type ExternalLink struct {
	URL string
}

func (PhotoGallery) blockKind() string   { return "photo_gallery" }
func (FileAttachment) blockKind() string { return "file" }
func (BlogBody) blockKind() string       { return "blog" }
func (ExternalLink) blockKind() string   { return "external_link" }
