// Package storage handles the on-disk output tree: atomic file writes,
// post directories, and the incomplete-post sentinel marker.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IncompleteMarker is the sentinel file left in a post directory whose
// download did not fully succeed
const IncompleteMarker = ".incomplete"

// ExternalLinksFile collects external links found in a post's text
const ExternalLinksFile = "external_links.txt"

// MetadataFile holds the post's raw JSON payload when metadata dumping is on
const MetadataFile = "metadata.json"

// Manager handles file storage under a base output directory
type Manager struct {
	baseDir string
}

// NewManager creates a storage manager rooted at baseDir
func NewManager(baseDir string) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Manager{baseDir: baseDir}, nil
}

// BaseDir returns the base output directory
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// PostDir returns the output directory for one post:
// <base>/<fanclub_id>/<post_id> or, when title is non-empty,
// <base>/<fanclub_id>/<post_id> - <sanitized title>
func (m *Manager) PostDir(fanclubID, postID, title string) string {
	name := postID
	if title != "" {
		name = postID + " - " + SanitizeFilename(title)
	}
	return filepath.Join(m.baseDir, fanclubID, name)
}

// EnsureDir creates dir if it does not exist
func (m *Manager) EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// Exists reports whether path exists and is a regular file
func (m *Manager) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SaveFile writes r to path atomically via a temp file and rename
func (m *Manager) SaveFile(r io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := path + ".tmp"
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to write file data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// SaveBytes writes data to path atomically
func (m *Manager) SaveBytes(data []byte, path string) error {
	return m.SaveFile(strings.NewReader(string(data)), path)
}

// MarkIncomplete drops the sentinel marker into dir. An existing marker is
// left in place.
func (m *Manager) MarkIncomplete(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create post directory: %w", err)
	}
	path := filepath.Join(dir, IncompleteMarker)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to write incomplete marker: %w", err)
	}
	return f.Close()
}

// ClearIncomplete removes the sentinel marker from dir if present
func (m *Manager) ClearIncomplete(dir string) error {
	path := filepath.Join(dir, IncompleteMarker)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove incomplete marker: %w", err)
	}
	return nil
}

// IsIncomplete reports whether dir carries the sentinel marker
func (m *Manager) IsIncomplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, IncompleteMarker))
	return err == nil
}

// AppendExternalLinks adds urls to the post's link file, skipping URLs
// already recorded
func (m *Manager) AppendExternalLinks(dir string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create post directory: %w", err)
	}

	path := filepath.Join(dir, ExternalLinksFile)
	existing := make(map[string]bool)
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				existing[line] = true
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open links file: %w", err)
	}
	defer f.Close()

	for _, url := range urls {
		if existing[url] {
			continue
		}
		if _, err := fmt.Fprintln(f, url); err != nil {
			return fmt.Errorf("failed to append link: %w", err)
		}
		existing[url] = true
	}
	return nil
}

// MetadataPath returns the metadata file location inside a post directory
func MetadataPath(dir string) string {
	return filepath.Join(dir, MetadataFile)
}

var unsafeFilenameRe = regexp.MustCompile(`[\x00-\x1f/\\:*?"<>|]+`)

// SanitizeFilename strips characters that are unsafe in file names
func SanitizeFilename(name string) string {
	sanitized := unsafeFilenameRe.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, " .")
	if sanitized == "" {
		return "_"
	}
	return sanitized
}
