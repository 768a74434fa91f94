package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xZoluGames/skinarb/internal/market"
)

func TestHistorySinkRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewHistorySink(sqlx.NewDb(db, "postgres"))
	takenAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO price_history").
		WithArgs("waxpeer", "AK-47 | Redline (Field-Tested)", 10.5, 3, takenAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO price_history").
		WithArgs("waxpeer", "AWP | Asiimov (Battle-Scarred)", 25.0, nil, takenAt).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	items := []market.Listing{
		{Item: "AK-47 | Redline (Field-Tested)", Price: 10.5, Platform: "waxpeer", Quantity: market.IntPtr(3)},
		{Item: "AWP | Asiimov (Battle-Scarred)", Price: 25.0, Platform: "waxpeer"},
	}
	require.NoError(t, sink.Record(context.Background(), "waxpeer", items, takenAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistorySinkRollbackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewHistorySink(sqlx.NewDb(db, "postgres"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO price_history").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = sink.Record(context.Background(), "waxpeer",
		[]market.Listing{{Item: "x", Price: 1, Platform: "waxpeer"}}, time.Now())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistorySinkNilIsNoop(t *testing.T) {
	var sink *HistorySink
	assert.NoError(t, sink.Record(context.Background(), "waxpeer",
		[]market.Listing{{Item: "x", Price: 1, Platform: "waxpeer"}}, time.Now()))
	assert.NoError(t, sink.Close())
}

func TestOpenHistoryEmptyDSN(t *testing.T) {
	sink, err := OpenHistory(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, sink)
}
