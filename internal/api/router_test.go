package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkearny/contrabot/internal/api/handlers"
	"github.com/mkearny/contrabot/internal/contracts"
	"github.com/mkearny/contrabot/internal/ledger"
	"github.com/mkearny/contrabot/internal/scheduler"
	"github.com/mkearny/contrabot/pkg/config"
	"github.com/mkearny/contrabot/pkg/logger"
)

type stubPositionRepo struct{}

func (stubPositionRepo) Insert(ctx context.Context, pos *contracts.Position) (int64, error) {
	return 1, nil
}
func (stubPositionRepo) Close(ctx context.Context, id int64, exitPrice, pnl float64, closedAt time.Time) error {
	return nil
}
func (stubPositionRepo) UpdatePrice(ctx context.Context, id int64, price, pnl float64) error {
	return nil
}
func (stubPositionRepo) OpenPositions(ctx context.Context) ([]contracts.Position, error) {
	return nil, nil
}
func (stubPositionRepo) RealizedPnL(ctx context.Context) (float64, error) { return 42.5, nil }

type stubSignalRepo struct{}

func (stubSignalRepo) SaveSignal(ctx context.Context, sig *contracts.FinalSignal) error { return nil }
func (stubSignalRepo) HasRecentSignal(ctx context.Context, ticker string, window time.Duration) (bool, error) {
	return false, nil
}

type stubPrices struct{}

func (stubPrices) Price(ctx context.Context, ticker string, asset contracts.AssetType) (float64, error) {
	return 100, nil
}

type stubAuditRepo struct {
	records []contracts.AuditRecord
}

func (s *stubAuditRepo) Record(ctx context.Context, rec *contracts.AuditRecord) error { return nil }
func (s *stubAuditRepo) ByPost(ctx context.Context, postID string) ([]contracts.AuditRecord, error) {
	var out []contracts.AuditRecord
	for _, rec := range s.records {
		if rec.PostID == postID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestRouter(t *testing.T, audit *stubAuditRepo) http.Handler {
	t.Helper()
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Trading: config.TradingConfig{
			MaxOpenPositions:   10,
			MaxPositionSizeUSD: 500,
			HoldingPeriodDays:  7,
		},
	}
	log := logger.New(cfg)

	book := ledger.New(cfg, stubPositionRepo{}, stubSignalRepo{}, stubPrices{}, log)
	h := handlers.NewStatusHandler(book, audit, scheduler.New(log), log)
	return NewRouter(h, log)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubAuditRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSummaryEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubAuditRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/summary", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var summary ledger.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 42.5, summary.RealizedPnL)
	assert.Equal(t, 10, summary.MaxPositions)
}

func TestAuditTrailEndpoint(t *testing.T) {
	audit := &stubAuditRepo{records: []contracts.AuditRecord{
		{ID: 1, PostID: "p1", Stage: contracts.StageFilter, Verdict: contracts.VerdictPass},
		{ID: 2, PostID: "p1", Stage: contracts.StageSignal, Verdict: contracts.VerdictReject, Reason: "below_confidence"},
	}}
	router := newTestRouter(t, audit)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts/p1/audit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		PostID  string                  `json:"post_id"`
		Records []contracts.AuditRecord `json:"records"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "p1", body.PostID)
	assert.Len(t, body.Records, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts/unknown/audit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPositionsEndpoint(t *testing.T) {
	router := newTestRouter(t, &stubAuditRepo{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/positions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 0, body.Count)
}
