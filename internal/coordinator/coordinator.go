package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/internal/filter"
	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/internal/signal"
	"github.com/mkearny/contrabot/internal/venue"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
	"github.com/mkearny/contrabot/pkg/redis"
)

// ReasonQueuedMarketClosed marks stock orders parked until the next open.
const ReasonQueuedMarketClosed = "queued_market_closed"

// ReasonInvariantViolation marks a venue fill the ledger could not accept.
const ReasonInvariantViolation = "invariant_violation"

// ReasonNoSignal marks posts the interpreter found no actionable trade in.
const ReasonNoSignal = "no_signal"

// ContentSource fetches posts and author reputation.
type ContentSource interface {
	NewPosts(ctx context.Context, subreddit string, limit int) ([]contracts.Post, error)
	AuthorKarma(ctx context.Context, author string) *int
}

// PositionStream tracks live quotes for the open book.
type PositionStream interface {
	Subscribe(ticker string)
	Unsubscribe(ticker string)
}

// Coordinator drives one polling cycle: pending orders first, then every
// configured subreddit concurrently, then the holding-period sweep. Each
// post flows filter -> interpreter -> normalizer -> ledger -> venue, with
// an audit record at every stage transition.
type Coordinator struct {
	source      ContentSource
	filter      *filter.Filter
	interpreter signal.Interpreter
	normalizer  *signal.Normalizer
	ledger      *ledger.Ledger
	venue       venue.ExecutionVenue
	stream      PositionStream

	posts   contracts.PostRepository
	audit   contracts.AuditRepository
	pending contracts.PendingOrderRepository
	seen    *redis.Cache

	subreddits   []string
	postsPerPoll int
	callTimeout  time.Duration

	logger *logger.Logger
}

// Config bundles the coordinator's collaborators.
type Config struct {
	Source      ContentSource
	Filter      *filter.Filter
	Interpreter signal.Interpreter
	Normalizer  *signal.Normalizer
	Ledger      *ledger.Ledger
	Venue       venue.ExecutionVenue
	Stream      PositionStream
	Posts       contracts.PostRepository
	Audit       contracts.AuditRepository
	Pending     contracts.PendingOrderRepository
	SeenCache   *redis.Cache
}

// New creates a coordinator.
func New(cfg *config.Config, deps Config, log *logger.Logger) *Coordinator {
	return &Coordinator{
		source:       deps.Source,
		filter:       deps.Filter,
		interpreter:  deps.Interpreter,
		normalizer:   deps.Normalizer,
		ledger:       deps.Ledger,
		venue:        deps.Venue,
		stream:       deps.Stream,
		posts:        deps.Posts,
		audit:        deps.Audit,
		pending:      deps.Pending,
		seen:         deps.SeenCache,
		subreddits:   cfg.Trading.Subreddits,
		postsPerPoll: cfg.Trading.PostsPerPoll,
		callTimeout:  cfg.Anthropic.Timeout,
		logger:       log,
	}
}

// RunCycle executes one full polling cycle.
func (c *Coordinator) RunCycle(ctx context.Context) {
	start := time.Now()

	c.submitPending(ctx)

	var wg sync.WaitGroup
	for _, sub := range c.subreddits {
		wg.Add(1)
		go func(sub string) {
			defer wg.Done()
			c.pollSubreddit(ctx, sub)
		}(sub)
	}
	wg.Wait()

	c.sweep(ctx)

	c.logger.WithField("duration", time.Since(start)).Debug("Cycle complete")
}

// pollSubreddit fetches and processes one subreddit's newest posts.
func (c *Coordinator) pollSubreddit(ctx context.Context, subreddit string) {
	posts, err := c.source.NewPosts(ctx, subreddit, c.postsPerPoll)
	if err != nil {
		c.logger.WithField("subreddit", subreddit).WithError(err).
			Warn("Listing fetch failed, will retry next cycle")
		return
	}

	for i := range posts {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.processPost(ctx, &posts[i])
	}
}

// processPost runs one post through the pipeline. Posts already seen are
// skipped so re-polled listings are idempotent. A post is marked seen at
// every terminal outcome; interpreter outages leave it unseen so the next
// cycle retries it.
func (c *Coordinator) processPost(ctx context.Context, post *contracts.Post) {
	if c.isSeen(ctx, post.ID) {
		return
	}

	c.record(ctx, post.ID, contracts.StagePostReceived, contracts.VerdictPass, "")

	if post.AuthorKarma == nil {
		post.AuthorKarma = c.source.AuthorKarma(ctx, post.Author)
	}

	verdict := c.filter.Admit(post)
	if !verdict.Pass {
		c.record(ctx, post.ID, contracts.StageFilter, contracts.VerdictReject, verdict.Reason)
		c.markSeen(ctx, post, false, verdict.Reason)
		return
	}
	c.record(ctx, post.ID, contracts.StageFilter, contracts.VerdictPass, "")

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	raw, err := c.interpreter.Interpret(callCtx, post)
	cancel()
	if err != nil {
		c.record(ctx, post.ID, contracts.StageSignal, contracts.VerdictError, err.Error())
		return
	}
	if raw == nil {
		c.record(ctx, post.ID, contracts.StageSignal, contracts.VerdictReject, ReasonNoSignal)
		c.markSeen(ctx, post, true, "")
		return
	}

	final, err := c.normalizer.Normalize(post.ID, raw)
	if err != nil {
		c.record(ctx, post.ID, contracts.StageSignal, contracts.VerdictReject, rejectionReason(err))
		c.markSeen(ctx, post, true, "")
		return
	}
	c.record(ctx, post.ID, contracts.StageSignal, contracts.VerdictPass, "")

	result, err := c.ledger.TryAdmit(ctx, final)
	if err != nil {
		c.record(ctx, post.ID, contracts.StageAdmission, contracts.VerdictError, err.Error())
		c.markSeen(ctx, post, true, "")
		return
	}
	if !result.Admitted {
		c.record(ctx, post.ID, contracts.StageAdmission, contracts.VerdictReject, result.Reason)
		c.markSeen(ctx, post, true, "")
		return
	}
	c.record(ctx, post.ID, contracts.StageAdmission, contracts.VerdictPass, "")

	c.executeOrder(ctx, result.Order)
	c.markSeen(ctx, post, true, "")
}

// executeOrder submits an admitted order, parking stock orders while the
// market is closed.
func (c *Coordinator) executeOrder(ctx context.Context, order *contracts.OrderRequest) {
	if order.AssetType != contracts.AssetCrypto {
		open, err := c.venue.MarketOpen(ctx)
		if err != nil {
			c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictError, err.Error())
			return
		}
		if !open {
			if err := c.pending.SavePending(ctx, order); err != nil {
				c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictError, err.Error())
				return
			}
			c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictPass, ReasonQueuedMarketClosed)
			c.logger.WithField("ticker", order.Ticker).Info("Market closed, order queued")
			return
		}
	}

	c.submitAndCommit(ctx, order)
}

// submitAndCommit fills the order at the venue and books the position.
func (c *Coordinator) submitAndCommit(ctx context.Context, order *contracts.OrderRequest) bool {
	conf, err := c.venue.SubmitOrder(ctx, order)
	if err != nil {
		if rej, ok := contracts.AsRejection(err); ok {
			c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictReject, rej.Reason)
			return true
		}
		c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictError, err.Error())
		return false
	}

	if _, err := c.ledger.Commit(ctx, order, conf); err != nil {
		if contracts.IsInvariantViolation(err) {
			// The venue holds a fill the book cannot accept. Surface it
			// loudly; reconciliation is manual.
			c.logger.WithFields(map[string]interface{}{
				"ticker":   order.Ticker,
				"order_id": conf.OrderID,
			}).WithError(err).Error("Orphan fill detected")
			c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictError, ReasonInvariantViolation)
			return true
		}
		c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictError, err.Error())
		return false
	}

	c.record(ctx, order.PostID, contracts.StageOrder, contracts.VerdictPass, "")
	c.stream.Subscribe(order.Ticker)
	return true
}

// submitPending drains the queued stock orders once the market is open.
func (c *Coordinator) submitPending(ctx context.Context) {
	queued, err := c.pending.ListPending(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("Pending order list failed")
		return
	}
	if len(queued) == 0 {
		return
	}

	open, err := c.venue.MarketOpen(ctx)
	if err != nil || !open {
		return
	}

	for i := range queued {
		p := &queued[i]
		if done := c.submitAndCommit(ctx, &p.Order); done {
			if err := c.pending.DeletePending(ctx, p.ID); err != nil {
				c.logger.WithField("id", p.ID).WithError(err).Warn("Pending order cleanup failed")
			}
		}
	}
}

// sweep closes positions past the holding period and keeps the venue's
// paper account and the quote stream in sync with the book.
func (c *Coordinator) sweep(ctx context.Context) {
	closed, err := c.ledger.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		c.logger.WithError(err).Warn("Holding period sweep failed")
		return
	}

	for i := range closed {
		pos := &closed[i]
		c.stream.Unsubscribe(pos.Ticker)

		if _, err := c.venue.ClosePosition(ctx, pos); err != nil {
			c.logger.WithField("ticker", pos.Ticker).WithError(err).
				Warn("Venue-side close failed, paper account out of sync")
		}
	}
}

// isSeen consults the shared cache first, then storage.
func (c *Coordinator) isSeen(ctx context.Context, postID string) bool {
	var hit bool
	if found, err := c.seen.Get(ctx, redis.SeenPostKey(postID), &hit); err == nil && found {
		return true
	}

	seen, err := c.posts.Seen(ctx, postID)
	if err != nil {
		c.logger.WithField("post_id", postID).WithError(err).Warn("Seen check failed")
		return false
	}
	return seen
}

// markSeen persists the post with its filter verdict and primes the cache.
func (c *Coordinator) markSeen(ctx context.Context, post *contracts.Post, passed bool, reason string) {
	if err := c.posts.SavePost(ctx, post, passed, reason); err != nil {
		c.logger.WithField("post_id", post.ID).WithError(err).Warn("Post save failed")
		return
	}
	if err := c.seen.Set(ctx, redis.SeenPostKey(post.ID), true, redis.TTLDaily); err != nil {
		c.logger.WithField("post_id", post.ID).WithError(err).Debug("Seen cache write failed")
	}
}

// record appends one audit entry. Audit failures are logged but never stop
// the pipeline.
// rejectionReason extracts the audit reason from a stage error, falling
// back to the error text for non-rejection failures.
func rejectionReason(err error) string {
	if rej, ok := contracts.AsRejection(err); ok {
		return rej.Reason
	}
	return err.Error()
}

func (c *Coordinator) record(ctx context.Context, postID string, stage contracts.Stage, verdict contracts.Verdict, reason string) {
	rec := contracts.NewAuditRecord(postID, stage, verdict, reason)
	if err := c.audit.Record(ctx, rec); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"post_id": postID,
			"stage":   string(stage),
		}).WithError(err).Error("Audit write failed")
	}
}
