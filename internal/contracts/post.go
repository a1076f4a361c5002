package contracts

import "time"

// Post is a single Reddit submission as fetched by the monitor.
// Immutable once fetched; identified by ID across polls and restarts.
type Post struct {
	ID          string    `json:"id"`
	Subreddit   string    `json:"subreddit"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	AuthorKarma *int      `json:"author_karma,omitempty"` // nil when karma could not be fetched
	Upvotes     int       `json:"upvotes"`
	IsSelf      bool      `json:"is_self"` // true = text post, false = link post
	CreatedAt   time.Time `json:"created_at"`
}

// Text returns the title and body joined for lexicon and ticker scanning.
func (p *Post) Text() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + " " + p.Body
}
