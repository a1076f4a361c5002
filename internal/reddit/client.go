package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
)

// Client fetches new posts from the public JSON listings. All requests pass
// through a local limiter: the unauthenticated API tolerates roughly one
// request per second per client before it starts returning 429s.
type Client struct {
	http       *httputil.Client
	baseURL    string
	oldBaseURL string
	userAgent  string
	limiter    *rate.Limiter
	fallback   *HTMLParser
	logger     *logger.Logger
}

// NewClient creates a Reddit client with the HTML fallback wired in.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		http:       httpClient,
		baseURL:    cfg.Reddit.BaseURL,
		oldBaseURL: cfg.Reddit.OldBaseURL,
		userAgent:  cfg.Reddit.UserAgent,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		fallback:   NewHTMLParser(log),
		logger:     log,
	}
}

// listing mirrors the JSON listing envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	ID         string  `json:"id"`
	Subreddit  string  `json:"subreddit"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Author     string  `json:"author"`
	Ups        int     `json:"ups"`
	IsSelf     bool    `json:"is_self"`
	CreatedUTC float64 `json:"created_utc"`
}

// NewPosts fetches the newest posts in a subreddit. When the JSON listing
// is unavailable it falls back to scraping the old-style HTML listing,
// which yields titles but no bodies.
func (c *Client) NewPosts(ctx context.Context, subreddit string, limit int) ([]contracts.Post, error) {
	posts, err := c.newPostsJSON(ctx, subreddit, limit)
	if err == nil {
		return posts, nil
	}

	c.logger.WithField("subreddit", subreddit).WithError(err).
		Warn("JSON listing failed, trying HTML fallback")

	posts, fbErr := c.newPostsHTML(ctx, subreddit)
	if fbErr != nil {
		return nil, contracts.NewUnavailable("content source", fmt.Errorf("json: %v, html: %w", err, fbErr))
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (c *Client) newPostsJSON(ctx context.Context, subreddit string, limit int) ([]contracts.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1",
		c.baseURL, url.PathEscape(subreddit), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("failed to decode listing: %w", err)
	}

	posts := make([]contracts.Post, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		posts = append(posts, contracts.Post{
			ID:        p.ID,
			Subreddit: p.Subreddit,
			Title:     p.Title,
			Body:      p.Selftext,
			URL:       p.URL,
			Author:    p.Author,
			Upvotes:   p.Ups,
			IsSelf:    p.IsSelf,
			CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		})
	}
	return posts, nil
}

func (c *Client) newPostsHTML(ctx context.Context, subreddit string) ([]contracts.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/r/%s/new/", c.oldBaseURL, url.PathEscape(subreddit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return c.fallback.ParseListing(resp.Body, subreddit)
}

// AuthorKarma fetches an author's combined karma. A failure returns nil:
// missing karma is recorded as unknown, not as zero.
func (c *Client) AuthorKarma(ctx context.Context, author string) *int {
	if author == "" || author == "[deleted]" {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	u := fmt.Sprintf("%s/user/%s/about.json", c.baseURL, url.PathEscape(author))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithField("author", author).WithError(err).Debug("Karma lookup failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var about struct {
		Data struct {
			TotalKarma   int `json:"total_karma"`
			LinkKarma    int `json:"link_karma"`
			CommentKarma int `json:"comment_karma"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return nil
	}

	karma := about.Data.TotalKarma
	if karma == 0 {
		karma = about.Data.LinkKarma + about.Data.CommentKarma
	}
	return &karma
}

// parseCount turns listing score strings like "1.2k" into integers.
func parseCount(s string) int {
	if s == "" || s == "•" {
		return 0
	}

	mult := 1.0
	if last := s[len(s)-1]; last == 'k' || last == 'K' {
		mult = 1000
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}
