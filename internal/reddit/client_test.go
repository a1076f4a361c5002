package reddit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/httputil"
	"github.com/mkearny/contrabot/pkg/logger"
)

const listingJSON = `{
  "data": {
    "children": [
      {"data": {
        "id": "abc1", "subreddit": "wallstreetbets",
        "title": "TSLA to the moon", "selftext": "buying calls tomorrow",
        "url": "https://reddit.com/r/wallstreetbets/abc1",
        "author": "yolo_king", "ups": 420, "is_self": true,
        "created_utc": 1756100000
      }},
      {"data": {
        "id": "abc2", "subreddit": "wallstreetbets",
        "title": "loss porn", "selftext": "",
        "url": "https://i.redd.it/loss.png",
        "author": "paperhands", "ups": 69, "is_self": false,
        "created_utc": 1756100100
      }}
    ]
  }
}`

const listingHTML = `<html><body>
<div class="thing" data-fullname="t3_xyz9" data-author="contrarian" data-domain="self.stocks" data-url="/r/stocks/xyz9" data-timestamp="1756100000000">
  <a class="title">NVDA is overvalued here</a>
  <div class="score unvoted">1.2k</div>
</div>
<div class="thing promoted" data-fullname="t3_ad01" data-author="sponsor">
  <a class="title">sponsored nonsense</a>
</div>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Reddit: config.RedditConfig{
			BaseURL:    server.URL,
			OldBaseURL: server.URL + "/old",
			UserAgent:  "contrabot-test/1.0",
		},
	}
	log := logger.New(cfg)
	return NewClient(cfg, httputil.New(cfg, log).DisableRetry(), log)
}

func TestNewPostsJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/wallstreetbets/new.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "contrabot-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(listingJSON))
	})

	c := newTestClient(t, mux)
	posts, err := c.NewPosts(context.Background(), "wallstreetbets", 25)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "abc1", posts[0].ID)
	assert.Equal(t, "TSLA to the moon", posts[0].Title)
	assert.Equal(t, "buying calls tomorrow", posts[0].Body)
	assert.True(t, posts[0].IsSelf)
	assert.Equal(t, 420, posts[0].Upvotes)
	assert.False(t, posts[1].IsSelf)
}

func TestNewPostsFallsBackToHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/stocks/new.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/old/r/stocks/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(listingHTML))
	})

	c := newTestClient(t, mux)
	posts, err := c.NewPosts(context.Background(), "stocks", 25)
	require.NoError(t, err)
	require.Len(t, posts, 1, "promoted entries are skipped")

	assert.Equal(t, "xyz9", posts[0].ID)
	assert.Equal(t, "NVDA is overvalued here", posts[0].Title)
	assert.Equal(t, "contrarian", posts[0].Author)
	assert.True(t, posts[0].IsSelf)
	assert.Equal(t, 1200, posts[0].Upvotes)
	assert.Empty(t, posts[0].Body, "listing pages carry no bodies")
}

func TestNewPostsBothPathsDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	c := newTestClient(t, mux)
	_, err := c.NewPosts(context.Background(), "stocks", 25)
	assert.Error(t, err)
}

func TestAuthorKarma(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/yolo_king/about.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"total_karma": 12345}}`))
	})
	mux.HandleFunc("/user/oldschool/about.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"link_karma": 100, "comment_karma": 250}}`))
	})
	mux.HandleFunc("/user/ghost/about.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, mux)
	ctx := context.Background()

	karma := c.AuthorKarma(ctx, "yolo_king")
	require.NotNil(t, karma)
	assert.Equal(t, 12345, *karma)

	karma = c.AuthorKarma(ctx, "oldschool")
	require.NotNil(t, karma)
	assert.Equal(t, 350, *karma, "legacy payloads sum link and comment karma")

	assert.Nil(t, c.AuthorKarma(ctx, "ghost"), "lookup failure yields unknown karma")
	assert.Nil(t, c.AuthorKarma(ctx, "[deleted]"))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"42", 42},
		{"1.2k", 1200},
		{"3K", 3000},
		{"•", 0},
		{"", 0},
		{"garbage", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCount(tt.in), "parseCount(%q)", tt.in)
	}
}
