package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/database"
	"github.com/mkearny/contrabot/pkg/redis"
)

// Integration test; skipped without a database. Exercises the signal
// cooldown path end to end: SaveSignal stamps the ticker, HasRecentSignal
// sees it inside the window and not outside.
func TestSignalRepositoryRecentWindow(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db.Pool))

	redisClient, err := redis.New(cfg)
	require.NoError(t, err)
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, "contrabot-test")

	posts := NewPostRepository(db.Pool)
	signals := NewSignalRepository(db.Pool, cache)

	ticker := fmt.Sprintf("ZZT%d", time.Now().UnixNano()%100000)
	postID := "t_" + ticker

	t.Cleanup(func() {
		db.Pool.Exec(ctx, `DELETE FROM signals WHERE post_id = $1`, postID)
		db.Pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
		cache.Delete(ctx, redis.RecentSignalKey(ticker))
	})

	recent, err := signals.HasRecentSignal(ctx, ticker, 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, recent)

	require.NoError(t, posts.SavePost(ctx, &contracts.Post{
		ID:        postID,
		Subreddit: "wallstreetbets",
		Title:     "to the moon",
		CreatedAt: time.Now().UTC(),
	}, true, ""))

	require.NoError(t, signals.SaveSignal(ctx, &contracts.FinalSignal{
		PostID:         postID,
		Ticker:         ticker,
		RawDirection:   contracts.DirectionLong,
		FinalDirection: contracts.DirectionShort,
		Confidence:     0.9,
		AssetType:      contracts.AssetStock,
		ModeApplied:    contracts.ModeAgainst,
	}))

	recent, err = signals.HasRecentSignal(ctx, ticker, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, recent)

	// A zero-width window must not match the signal just written.
	recent, err = signals.HasRecentSignal(ctx, ticker, -time.Second)
	require.NoError(t, err)
	assert.False(t, recent)
}
