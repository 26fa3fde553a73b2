package fantia

import (
	"fmt"
	"net/url"
)

const (
	// BaseURL is the base URL for Fantia
	BaseURL = "https://fantia.jp"

	// PostAPIEndpoint is the endpoint pattern for post detail payloads
	PostAPIEndpoint = "/api/v1/posts/%s"

	// TimelineEndpoint is the endpoint for the account's new-post timeline
	TimelineEndpoint = "/api/v1/me/timelines/posts"

	// MeFanclubsEndpoint is the endpoint for the account's followed fanclubs
	MeFanclubsEndpoint = "/api/v1/me/fanclubs"

	// PaidPlansPath is the HTML page listing fanclubs backed on a paid plan
	PaidPlansPath = "/mypage/users/plans"

	// TimelinePerPage is the page size the timeline API serves
	TimelinePerPage = 24
)

// PostAPIURL constructs the URL for fetching a post's detail payload
func PostAPIURL(base, postID string) string {
	return base + fmt.Sprintf(PostAPIEndpoint, postID)
}

// PostPageURL constructs the URL of a post's HTML page
func PostPageURL(base, postID string) string {
	return fmt.Sprintf("%s/posts/%s", base, postID)
}

// FanclubPostsURL constructs the URL of one page of a fanclub's post listing.
// Pages are 1-based and served newest-first.
func FanclubPostsURL(base, fanclubID string, page int) string {
	params := url.Values{}
	params.Set("page", fmt.Sprintf("%d", page))
	return fmt.Sprintf("%s/fanclubs/%s/posts?%s", base, fanclubID, params.Encode())
}

// TimelineURL constructs the URL of one page of the new-post timeline
func TimelineURL(base string, page int) string {
	params := url.Values{}
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("per", fmt.Sprintf("%d", TimelinePerPage))
	return fmt.Sprintf("%s%s?%s", base, TimelineEndpoint, params.Encode())
}

// MeFanclubsURL constructs the URL of the followed-fanclubs API
func MeFanclubsURL(base string) string {
	return base + MeFanclubsEndpoint
}

// PaidPlansURL constructs the URL of the paid-plans listing page
func PaidPlansURL(base string) string {
	params := url.Values{}
	params.Set("type", "not_free")
	return fmt.Sprintf("%s%s?%s", base, PaidPlansPath, params.Encode())
}

// FanclubURL constructs the public URL of a fanclub
func FanclubURL(base, fanclubID string) string {
	return fmt.Sprintf("%s/fanclubs/%s", base, fanclubID)
}
