package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) WagersList(ctx context.Context, filter domain.WagerFilter) ([]domain.Wager, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var statusArg *string
	if filter.Status != nil {
		v := string(*filter.Status)
		statusArg = &v
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT wager_number, customer_id, agent_id, amount_wagered, to_win, description,
		       placed_at, settlement_status, settlement_amount, settled_at, settled_by
		FROM wagers
		WHERE ($1::text IS NULL OR agent_id = $1)
		  AND ($2::text IS NULL OR customer_id = $2)
		  AND ($3::text IS NULL OR settlement_status = $3)
		ORDER BY wager_number
		LIMIT $4 OFFSET $5
	`, filter.AgentID, filter.CustomerID, statusArg, limit, filter.Offset)
	if err != nil {
		return nil, apperrors.StoreError("wagers_list", err)
	}
	defer rows.Close()

	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, apperrors.StoreError("wagers_list", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) WagerGet(ctx context.Context, wagerNumber int64) (domain.Wager, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT wager_number, customer_id, agent_id, amount_wagered, to_win, description,
		       placed_at, settlement_status, settlement_amount, settled_at, settled_by
		FROM wagers WHERE wager_number = $1
	`, wagerNumber)
	w, err := scanWager(row)
	if err == sql.ErrNoRows {
		return domain.Wager{}, apperrors.NotFound("wager", strconv.FormatInt(wagerNumber, 10))
	}
	if err != nil {
		return domain.Wager{}, apperrors.StoreError("wager_get", err)
	}
	return w, nil
}

// SettleWager performs the conditional update settlement exclusivity
// depends on: the row is only modified if settlement_status is still
// 'pending'. ok=false (with no error) means a concurrent settle already won.
func (s *Store) SettleWager(ctx context.Context, wagerNumber int64, status domain.SettlementStatus, settlementAmount decimal.Decimal, settledBy, note string, batchID *string, settledAt time.Time) (domain.Wager, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wagers
		SET settlement_status = $2, settlement_amount = $3, settled_at = $4, settled_by = $5
		WHERE wager_number = $1 AND settlement_status = 'pending'
	`, wagerNumber, string(status), settlementAmount, settledAt.UTC(), settledBy)
	if err != nil {
		return domain.Wager{}, false, apperrors.StoreError("settle_wager", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Wager{}, false, nil
	}

	w, err := s.WagerGet(ctx, wagerNumber)
	if err != nil {
		return domain.Wager{}, false, err
	}
	return w, true, nil
}

func scanWager(scanner rowScanner) (domain.Wager, error) {
	var (
		w                domain.Wager
		amountWagered    decimal.Decimal
		toWin            decimal.Decimal
		status           string
		settlementAmount sql.NullString
		settledAt        sql.NullTime
		settledBy        sql.NullString
	)
	if err := scanner.Scan(&w.WagerNumber, &w.CustomerID, &w.AgentID, &amountWagered, &toWin, &w.Description,
		&w.PlacedAt, &status, &settlementAmount, &settledAt, &settledBy); err != nil {
		return domain.Wager{}, err
	}
	w.AmountWagered = amountWagered
	w.ToWin = toWin
	w.SettlementStatus = domain.SettlementStatus(status)
	if settlementAmount.Valid {
		d, err := decimal.NewFromString(settlementAmount.String)
		if err != nil {
			return domain.Wager{}, err
		}
		w.SettlementAmount = &d
	}
	w.SettledAt = fromNullTime(settledAt)
	w.SettledBy = fromNullString(settledBy)
	return w, nil
}
