package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/domain"
)

func TestSettleWagerConditionalUpdateAlreadySettled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	mock.ExpectExec(`UPDATE wagers`).
		WithArgs(int64(777), "win", decimal.NewFromInt(25), sqlmock.AnyArg(), "op1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, ok, err := s.SettleWager(context.Background(), 777, domain.SettlementWin, decimal.NewFromInt(25), "op1", "", nil, time.Now())
	require.NoError(t, err)
	require.False(t, ok, "zero rows affected means a concurrent settle already won")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettleWagerConditionalUpdateSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)

	mock.ExpectExec(`UPDATE wagers`).
		WithArgs(int64(777), "win", decimal.NewFromInt(25), sqlmock.AnyArg(), "op1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{
		"wager_number", "customer_id", "agent_id", "amount_wagered", "to_win", "description",
		"placed_at", "settlement_status", "settlement_amount", "settled_at", "settled_by",
	}).AddRow(int64(777), "c1", "a1", decimal.NewFromInt(10), decimal.NewFromInt(25), "",
		time.Now(), "win", "25", time.Now(), "op1")
	mock.ExpectQuery(`SELECT wager_number, customer_id, agent_id`).
		WithArgs(int64(777)).
		WillReturnRows(rows)

	w, ok, err := s.SettleWager(context.Background(), 777, domain.SettlementWin, decimal.NewFromInt(25), "op1", "", nil, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.SettlementWin, w.SettlementStatus)

	require.NoError(t, mock.ExpectationsWereMet())
}
