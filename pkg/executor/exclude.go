package executor

import (
	"bufio"
	"os"
	"strings"

	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/storage"
)

// ExclusionSet holds filenames that must never be downloaded. Matching is
// by exact name against both the server-reported filename and the local
// target name.
type ExclusionSet struct {
	names map[string]bool
}

// LoadExclusions reads a newline-delimited filename list. Blank lines and
// lines starting with "#" are ignored.
func LoadExclusions(path string) (*ExclusionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "failed to open exclusion file")
	}
	defer f.Close()

	set := &ExclusionSet{names: make(map[string]bool)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.names[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.KindUnknown, err, "failed to read exclusion file")
	}
	return set, nil
}

// Excludes reports whether the item matches the exclusion list
func (e *ExclusionSet) Excludes(item DownloadItem) bool {
	if e == nil || len(e.names) == 0 {
		return false
	}
	if item.ServerFilename != "" {
		if e.names[item.ServerFilename] || e.names[storage.SanitizeFilename(item.ServerFilename)] {
			return true
		}
	}
	return e.names[item.TargetName]
}

// Len returns the number of excluded names
func (e *ExclusionSet) Len() int {
	if e == nil {
		return 0
	}
	return len(e.names)
}
