package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/xZoluGames/skinarb/internal/errs"
	"github.com/xZoluGames/skinarb/internal/market"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS price_history (
	id          BIGSERIAL PRIMARY KEY,
	venue       TEXT        NOT NULL,
	item        TEXT        NOT NULL,
	price       NUMERIC     NOT NULL,
	quantity    INTEGER,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS price_history_venue_item_idx
	ON price_history (venue, item, recorded_at);
`

const insertHistory = `
INSERT INTO price_history (venue, item, price, quantity, recorded_at)
VALUES ($1, $2, $3, $4, $5)`

// HistorySink mirrors snapshots into Postgres for long-term price history.
// It is optional: a nil sink is a no-op everywhere.
type HistorySink struct {
	db *sqlx.DB
}

// OpenHistory connects to Postgres and ensures the schema. An empty DSN
// returns a nil sink.
func OpenHistory(ctx context.Context, dsn string) (*HistorySink, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "", err)
	}
	db.SetMaxOpenConns(4)
	s := &HistorySink{db: db}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindPersistence, "", err)
	}
	return s, nil
}

// NewHistorySink wraps an existing connection; used by tests.
func NewHistorySink(db *sqlx.DB) *HistorySink { return &HistorySink{db: db} }

// Record appends one snapshot's listings, all stamped with takenAt, in a
// single transaction.
func (s *HistorySink) Record(ctx context.Context, venue string, items []market.Listing, takenAt time.Time) error {
	if s == nil || len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.KindPersistence, venue, err)
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, insertHistory, venue, it.Item, it.Price, it.Quantity, takenAt); err != nil {
			tx.Rollback()
			return errs.Wrap(errs.KindPersistence, venue, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindPersistence, venue, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *HistorySink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
