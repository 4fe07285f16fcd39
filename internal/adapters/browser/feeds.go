package browser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bnema/xhs-pilot/internal/domain"
)

// feedStateScript flattens window.__INITIAL_STATE__.feed.feeds into [{id, xsecToken}].
const feedStateScript = `() => {
	const s = window.__INITIAL_STATE__;
	if (!s || !s.feed || !s.feed.feeds) return '';
	let data = s.feed.feeds;
	if (data.value !== undefined) data = data.value;
	else if (data._value !== undefined) data = data._value;
	if (!Array.isArray(data)) return '';
	const flat = [];
	for (const item of data) {
		if (Array.isArray(item)) flat.push(...item); else flat.push(item);
	}
	return JSON.stringify(flat.map(item => ({id: item.id || '', xsecToken: item.xsecToken || ''})));
}`

type stateFeed struct {
	ID        string `json:"id"`
	XsecToken string `json:"xsecToken"`
}

// parseStateFeeds decodes the output of feedStateScript.
func parseStateFeeds(raw string) ([]domain.FeedRef, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var entries []stateFeed
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode feed state: %w", err)
	}

	feeds := make([]domain.FeedRef, 0, len(entries))
	for _, entry := range entries {
		feeds = appendFeed(feeds, domain.FeedRef{ID: entry.ID, XsecToken: entry.XsecToken})
	}
	return feeds, nil
}

// feedsFromHTML reads note links from the rendered explore grid when the state
// object is unavailable.
func feedsFromHTML(html string) ([]domain.FeedRef, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse explore html: %w", err)
	}

	var feeds []domain.FeedRef
	doc.Find("section.note-item a[href], a.cover[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if feed, ok := feedFromHref(href); ok {
			feeds = appendFeed(feeds, feed)
		}
	})
	return feeds, nil
}

func feedFromHref(href string) (domain.FeedRef, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return domain.FeedRef{}, false
	}

	dir, id := path.Split(strings.TrimSuffix(u.Path, "/"))
	if id == "" || !(strings.HasSuffix(dir, "/explore/") || strings.HasSuffix(dir, "/search_result/")) {
		return domain.FeedRef{}, false
	}

	return domain.FeedRef{ID: id, XsecToken: u.Query().Get("xsec_token")}, true
}

func appendFeed(feeds []domain.FeedRef, feed domain.FeedRef) []domain.FeedRef {
	if feed.ID == "" {
		return feeds
	}
	for _, existing := range feeds {
		if existing.ID == feed.ID {
			return feeds
		}
	}
	return append(feeds, feed)
}
