package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkearny/contrabot/internal/contracts"
)

// AuditRepository is the append-only audit sink. There are no update or
// delete statements in this file on purpose.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Record appends one audit record.
func (r *AuditRepository) Record(ctx context.Context, rec *contracts.AuditRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_records (post_id, stage, verdict, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.PostID, rec.Stage, rec.Verdict, rec.Reason, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ByPost returns a post's audit trail in insertion order.
func (r *AuditRepository) ByPost(ctx context.Context, postID string) ([]contracts.AuditRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, post_id, stage, verdict, reason, created_at
		FROM audit_records
		WHERE post_id = $1
		ORDER BY id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	records := make([]contracts.AuditRecord, 0)
	for rows.Next() {
		var rec contracts.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.PostID, &rec.Stage, &rec.Verdict, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}

	return records, nil
}
