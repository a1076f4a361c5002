// Package store implements the PostgreSQL repositories behind the
// persistence interfaces in contracts.
package store

import "github.com/mkearny/contrabot/internal/contracts"

var (
	_ contracts.PostRepository         = (*PostRepository)(nil)
	_ contracts.SignalRepository       = (*SignalRepository)(nil)
	_ contracts.PositionRepository     = (*PositionRepository)(nil)
	_ contracts.AuditRepository        = (*AuditRepository)(nil)
	_ contracts.PendingOrderRepository = (*PendingOrderRepository)(nil)
)
