package reddit

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/logger"
)

// HTMLParser scrapes the old-style listing pages. It is the degraded path:
// listings carry titles, authors and scores but no post bodies, so
// downstream filtering works from titles alone.
type HTMLParser struct {
	logger *logger.Logger
}

// NewHTMLParser creates a listing page parser.
func NewHTMLParser(log *logger.Logger) *HTMLParser {
	return &HTMLParser{logger: log}
}

// ParseListing extracts posts from an old-style subreddit listing page.
func (p *HTMLParser) ParseListing(r io.Reader, subreddit string) ([]contracts.Post, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	var posts []contracts.Post
	doc.Find("div.thing").Each(func(i int, s *goquery.Selection) {
		if s.HasClass("promoted") || s.HasClass("stickied") {
			return
		}

		fullname, ok := s.Attr("data-fullname")
		if !ok || !strings.HasPrefix(fullname, "t3_") {
			return
		}

		post := contracts.Post{
			ID:        strings.TrimPrefix(fullname, "t3_"),
			Subreddit: subreddit,
			Author:    s.AttrOr("data-author", ""),
			Title:     strings.TrimSpace(s.Find("a.title").First().Text()),
			URL:       s.AttrOr("data-url", ""),
			IsSelf:    strings.HasPrefix(s.AttrOr("data-domain", ""), "self."),
			Upvotes:   parseCount(s.Find("div.score.unvoted").First().Text()),
			CreatedAt: parseTimestamp(s.AttrOr("data-timestamp", "")),
		}

		if post.Title == "" {
			return
		}
		posts = append(posts, post)
	})

	p.logger.WithFields(map[string]interface{}{
		"subreddit": subreddit,
		"count":     len(posts),
	}).Debug("Parsed HTML listing")

	return posts, nil
}

// parseTimestamp converts the listing's millisecond epoch attribute.
func parseTimestamp(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
