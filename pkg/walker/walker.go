// Package walker turns Fantia's paged listings into explicit post-id
// iterators. Walks are lazy (one page per step) and not restartable
// mid-sequence; resumption across runs comes from the completion ledger.
package walker

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "fantiadl/pkg/errors"
	"fantiadl/pkg/fantia"
	"fantiadl/pkg/logger"
)

// ErrEnd signals the natural end of a walk
var ErrEnd = errors.New("walker: end of sequence")

// PostRef identifies one post yielded by a walk
type PostRef struct {
	ID        string
	FanclubID string
	PostedAt  time.Time
}

// FanclubRef identifies one followed fanclub
type FanclubRef struct {
	ID string
}

var postHrefRe = regexp.MustCompile(`^/posts/(\d+)`)

// listing dates appear as either full timestamps or bare dates
var listingDateLayouts = []string{"2006-01-02 15:04", "2006-01-02"}

// FanclubWalker yields a fanclub's posts newest-first, one listing page at a
// time. A month filter drops posts outside the target calendar month without
// ending the walk early, since pages mix months near boundaries.
type FanclubWalker struct {
	client    *fantia.Client
	fanclubID string
	limit     int
	month     time.Time
	page      int
	queue     []PostRef
	yielded   int
	done      bool
	logger    logger.Logger
}

// NewFanclubWalker creates a walker over one fanclub's post history.
// limit 0 means unbounded; a zero month disables month filtering.
func NewFanclubWalker(client *fantia.Client, fanclubID string, limit int, month time.Time, log logger.Logger) *FanclubWalker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &FanclubWalker{
		client:    client,
		fanclubID: fanclubID,
		limit:     limit,
		month:     month,
		logger:    log,
	}
}

// Next yields the next post reference, ErrEnd at the end of the listing, or
// a page_fetch error that terminates the walk
func (w *FanclubWalker) Next(ctx context.Context) (PostRef, error) {
	for {
		if w.limit > 0 && w.yielded >= w.limit {
			return PostRef{}, ErrEnd
		}

		if len(w.queue) == 0 {
			if w.done {
				return PostRef{}, ErrEnd
			}
			if err := w.fetchPage(ctx); err != nil {
				w.done = true
				return PostRef{}, err
			}
			continue
		}

		ref := w.queue[0]
		w.queue = w.queue[1:]

		if !w.month.IsZero() && !sameMonth(ref.PostedAt, w.month) {
			continue
		}

		w.yielded++
		return ref, nil
	}
}

func (w *FanclubWalker) fetchPage(ctx context.Context) error {
	w.page++
	url := fantia.FanclubPostsURL(w.client.BaseURL(), w.fanclubID, w.page)

	doc, err := w.client.GetDocument(ctx, url)
	if err != nil {
		w.logger.WithError(err).WithFields(map[string]interface{}{
			"fanclub_id": w.fanclubID,
			"page":       w.page,
		}).Error("Failed to fetch listing page")
		return errs.Wrap(errs.KindPageFetch, err, "failed to fetch fanclub listing page")
	}

	refs := parseListing(doc, w.fanclubID)
	if len(refs) == 0 {
		w.done = true
		return nil
	}

	w.logger.DebugWithFields("Listing page fetched", map[string]interface{}{
		"fanclub_id": w.fanclubID,
		"page":       w.page,
		"post_count": len(refs),
	})

	w.queue = append(w.queue, refs...)
	return nil
}

// parseListing extracts post references from a fanclub listing page in
// document order, which matches the server's newest-first ordering
func parseListing(doc *goquery.Document, fanclubID string) []PostRef {
	var refs []PostRef
	doc.Find("a.link-block").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		m := postHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}

		ref := PostRef{ID: m[1], FanclubID: fanclubID}
		dateText := strings.TrimSpace(sel.Find(".post-date").First().Text())
		for _, layout := range listingDateLayouts {
			if t, err := time.Parse(layout, dateText); err == nil {
				ref.PostedAt = t
				break
			}
		}
		refs = append(refs, ref)
	})
	return refs
}

func sameMonth(t, month time.Time) bool {
	if t.IsZero() {
		return false
	}
	return t.Year() == month.Year() && t.Month() == month.Month()
}

// TimelineWalker yields posts from the account's "new posts" timeline across
// fanclubs, stopping once postCount posts have been yielded. When allowed is
// non-nil only posts from those fanclubs are yielded (paid-only scope).
type TimelineWalker struct {
	client    *fantia.Client
	postCount int
	allowed   map[string]bool
	page      int
	queue     []PostRef
	yielded   int
	done      bool
	logger    logger.Logger
}

// NewTimelineWalker creates a walker over the account timeline
func NewTimelineWalker(client *fantia.Client, postCount int, allowed map[string]bool, log logger.Logger) *TimelineWalker {
	if log == nil {
		log = logger.GetLogger()
	}
	return &TimelineWalker{
		client:    client,
		postCount: postCount,
		allowed:   allowed,
		logger:    log,
	}
}

// Next yields the next timeline post reference or ErrEnd
func (w *TimelineWalker) Next(ctx context.Context) (PostRef, error) {
	for {
		if w.postCount > 0 && w.yielded >= w.postCount {
			return PostRef{}, ErrEnd
		}

		if len(w.queue) == 0 {
			if w.done {
				return PostRef{}, ErrEnd
			}
			if err := w.fetchPage(ctx); err != nil {
				w.done = true
				return PostRef{}, err
			}
			continue
		}

		ref := w.queue[0]
		w.queue = w.queue[1:]

		if w.allowed != nil && !w.allowed[ref.FanclubID] {
			continue
		}

		w.yielded++
		return ref, nil
	}
}

func (w *TimelineWalker) fetchPage(ctx context.Context) error {
	w.page++
	url := fantia.TimelineURL(w.client.BaseURL(), w.page)

	var response fantia.TimelineResponse
	if err := w.client.GetJSON(ctx, url, nil, &response); err != nil {
		w.logger.WithError(err).WithField("page", w.page).Error("Failed to fetch timeline page")
		return errs.Wrap(errs.KindPageFetch, err, "failed to fetch timeline page")
	}

	if len(response.Posts) == 0 {
		w.done = true
		return nil
	}

	for _, post := range response.Posts {
		ref := PostRef{
			ID:        strconv.Itoa(post.ID),
			FanclubID: strconv.Itoa(post.Fanclub.ID),
		}
		if t, err := time.Parse(fantia.PostedAtLayout, post.PostedAt); err == nil {
			ref.PostedAt = t
		}
		w.queue = append(w.queue, ref)
	}
	return nil
}

var fanclubHrefRe = regexp.MustCompile(`^/fanclubs/(\d+)`)

// FollowedFanclubs enumerates the account's followed fanclubs. With paidOnly
// set, only fanclubs backed on an active paid plan are returned, scraped from
// the plans page; otherwise the followed-fanclubs API is used.
func FollowedFanclubs(ctx context.Context, client *fantia.Client, paidOnly bool, log logger.Logger) ([]FanclubRef, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if !paidOnly {
		var response fantia.MeFanclubsResponse
		if err := client.GetJSON(ctx, fantia.MeFanclubsURL(client.BaseURL()), nil, &response); err != nil {
			return nil, errs.Wrap(errs.KindPageFetch, err, "failed to fetch followed fanclubs")
		}
		refs := make([]FanclubRef, 0, len(response.FanclubIDs))
		for _, id := range response.FanclubIDs {
			refs = append(refs, FanclubRef{ID: strconv.Itoa(id)})
		}
		log.InfoWithFields("Followed fanclubs fetched", map[string]interface{}{
			"count": len(refs),
		})
		return refs, nil
	}

	doc, err := client.GetDocument(ctx, fantia.PaidPlansURL(client.BaseURL()))
	if err != nil {
		return nil, errs.Wrap(errs.KindPageFetch, err, "failed to fetch paid plans page")
	}

	seen := make(map[string]bool)
	var refs []FanclubRef
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := fanclubHrefRe.FindStringSubmatch(href)
		if m == nil || seen[m[1]] {
			return
		}
		seen[m[1]] = true
		refs = append(refs, FanclubRef{ID: m[1]})
	})

	log.InfoWithFields("Paid fanclubs fetched", map[string]interface{}{
		"count": len(refs),
	})
	return refs, nil
}
