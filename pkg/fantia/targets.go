package fantia

import (
	"net/url"
	"regexp"
	"strings"

	errs "fantiadl/pkg/errors"
)

// Target is a parsed download target. Downstream code switches on the
// concrete variant instead of re-inspecting raw URL strings.
type Target interface {
	isTarget()
}

// FanclubTarget selects a whole fanclub's post history
type FanclubTarget struct {
	ID string
}

// PostTarget selects a single post
type PostTarget struct {
	ID string
}

func (FanclubTarget) isTarget() {}
func (PostTarget) isTarget()    {}

var targetPathRe = regexp.MustCompile(`^/(fanclubs|posts)/(\d+)(?:/.*)?$`)

// ParseTarget resolves a URL-like string into a FanclubTarget or PostTarget.
// Only the two recognized path shapes (/fanclubs/<id>, /posts/<id>) are
// accepted; anything else fails with an invalid_target error. Pure function,
// no network.
func ParseTarget(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errs.New(errs.KindInvalidTarget, "empty target")
	}

	// Bare paths are accepted alongside fully qualified URLs
	path := trimmed
	if strings.Contains(trimmed, "://") || !strings.HasPrefix(trimmed, "/") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, errs.Wrap(errs.KindInvalidTarget, err, "unparseable target "+raw)
		}
		path = u.Path
		if u.Host == "" && !strings.HasPrefix(path, "/") {
			// No scheme and no leading slash, e.g. "fantia.jp/posts/1"
			if idx := strings.Index(trimmed, "/"); idx >= 0 {
				path = trimmed[idx:]
			} else {
				path = ""
			}
		}
	}

	m := targetPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, errs.Newf(errs.KindInvalidTarget, "%s is not a fanclub or post URL", raw)
	}

	switch m[1] {
	case "fanclubs":
		return FanclubTarget{ID: m[2]}, nil
	case "posts":
		return PostTarget{ID: m[2]}, nil
	}
	return nil, errs.Newf(errs.KindInvalidTarget, "%s is not a fanclub or post URL", raw)
}
