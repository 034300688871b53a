package postgres

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) SettlementsAppend(ctx context.Context, entry domain.SettlementEntry) (domain.SettlementEntry, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO settlement_log
			(wager_number, customer_id, agent_id, settlement_type, original_amount,
			 settlement_amount, balance_before, balance_after, settled_by, batch_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		RETURNING id, created_at
	`, entry.WagerNumber, entry.CustomerID, entry.AgentID, string(entry.SettlementType), entry.OriginalAmount,
		entry.SettlementAmount, entry.BalanceBefore, entry.BalanceAfter, entry.SettledBy, entry.BatchID, entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return domain.SettlementEntry{}, apperrors.StoreError("settlements_append", err)
	}
	return entry, nil
}

func (s *Store) SettlementsList(ctx context.Context, filter domain.SettlementFilter) ([]domain.SettlementEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wager_number, customer_id, agent_id, settlement_type, original_amount,
		       settlement_amount, balance_before, balance_after, settled_by, batch_id, note, created_at
		FROM settlement_log
		WHERE ($1::text IS NULL OR agent_id = $1)
		  AND ($2::text IS NULL OR customer_id = $2)
		  AND ($3::bigint IS NULL OR wager_number = $3)
		  AND ($4::text IS NULL OR batch_id = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, filter.AgentID, filter.CustomerID, filter.WagerNumber, filter.BatchID, limit, filter.Offset)
	if err != nil {
		return nil, apperrors.StoreError("settlements_list", err)
	}
	defer rows.Close()

	var out []domain.SettlementEntry
	for rows.Next() {
		e, err := scanSettlementEntry(rows)
		if err != nil {
			return nil, apperrors.StoreError("settlements_list", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SettlementBatchCreate(ctx context.Context, batch domain.SettlementBatch) (domain.SettlementBatch, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlement_batches (batch_id, created_by, created_at, total_count, status)
		VALUES ($1, $2, now(), $3, $4)
	`, batch.BatchID, batch.CreatedBy, batch.TotalCount, string(batch.Status))
	if err != nil {
		return domain.SettlementBatch{}, apperrors.StoreError("settlement_batch_create", err)
	}
	return batch, nil
}

func (s *Store) SettlementBatchComplete(ctx context.Context, id string, totals domain.BatchTotals) (domain.SettlementBatch, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE settlement_batches
		SET completed_count = $2, failed_count = $3, total_settlement_amount = $4, status = $5
		WHERE batch_id = $1
	`, id, totals.CompletedCount, totals.FailedCount, totals.TotalSettlementAmount, string(totals.Status))
	if err != nil {
		return domain.SettlementBatch{}, apperrors.StoreError("settlement_batch_complete", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.SettlementBatch{}, apperrors.NotFound("settlement_batch", id)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT batch_id, created_by, created_at, total_count, completed_count, failed_count,
		       total_settlement_amount, status
		FROM settlement_batches WHERE batch_id = $1
	`, id)
	return scanSettlementBatch(row)
}

func scanSettlementEntry(scanner rowScanner) (domain.SettlementEntry, error) {
	var (
		e                domain.SettlementEntry
		settlementType   string
		originalAmount   decimal.Decimal
		settlementAmount decimal.Decimal
		balanceBefore    decimal.Decimal
		balanceAfter     decimal.Decimal
		batchID          sql.NullString
	)
	if err := scanner.Scan(&e.ID, &e.WagerNumber, &e.CustomerID, &e.AgentID, &settlementType, &originalAmount,
		&settlementAmount, &balanceBefore, &balanceAfter, &e.SettledBy, &batchID, &e.Note, &e.CreatedAt); err != nil {
		return domain.SettlementEntry{}, err
	}
	e.SettlementType = domain.SettlementStatus(settlementType)
	e.OriginalAmount = originalAmount
	e.SettlementAmount = settlementAmount
	e.BalanceBefore = balanceBefore
	e.BalanceAfter = balanceAfter
	e.BatchID = fromNullString(batchID)
	return e, nil
}

func scanSettlementBatch(scanner rowScanner) (domain.SettlementBatch, error) {
	var (
		b      domain.SettlementBatch
		status string
		total  decimal.Decimal
	)
	if err := scanner.Scan(&b.BatchID, &b.CreatedBy, &b.CreatedAt, &b.TotalCount, &b.CompletedCount,
		&b.FailedCount, &total, &status); err != nil {
		return domain.SettlementBatch{}, err
	}
	b.TotalSettlementAmount = total
	b.Status = domain.BatchStatus(status)
	return b, nil
}
