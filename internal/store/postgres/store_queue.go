package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) QueueInsert(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, kind, customer_id, amount, payment_method, payment_details,
		                          priority, status, created_at, matched_with, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, string(item.Kind), item.CustomerID, item.Amount, item.PaymentMethod, item.PaymentDetails,
		item.Priority, string(item.Status), item.CreatedAt.UTC(), item.MatchedWith, item.Notes)
	if err != nil {
		return domain.QueueItem{}, apperrors.StoreError("queue_insert", err)
	}
	return item, nil
}

func (s *Store) QueueList(ctx context.Context, filter domain.QueueFilter) ([]domain.QueueItem, error) {
	var kindArg, statusArg *string
	if filter.Kind != nil {
		v := string(*filter.Kind)
		kindArg = &v
	}
	if filter.Status != nil {
		v := string(*filter.Status)
		statusArg = &v
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, customer_id, amount, payment_method, payment_details,
		       priority, status, created_at, matched_with, notes
		FROM queue_items
		WHERE ($1::text IS NULL OR kind = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY priority DESC, created_at ASC
	`, kindArg, statusArg)
	if err != nil {
		return nil, apperrors.StoreError("queue_list", err)
	}
	defer rows.Close()

	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, apperrors.StoreError("queue_list", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) QueueGet(ctx context.Context, id string) (domain.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, customer_id, amount, payment_method, payment_details,
		       priority, status, created_at, matched_with, notes
		FROM queue_items WHERE id = $1
	`, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return domain.QueueItem{}, apperrors.NotFound("queue_item", id)
	}
	if err != nil {
		return domain.QueueItem{}, apperrors.StoreError("queue_get", err)
	}
	return item, nil
}

func (s *Store) QueueUpdateStatus(ctx context.Context, id string, status domain.QueueStatus, matchedWith *string) (domain.QueueItem, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = $2, matched_with = COALESCE($3, matched_with) WHERE id = $1
	`, id, string(status), matchedWith)
	if err != nil {
		return domain.QueueItem{}, apperrors.StoreError("queue_update_status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.QueueItem{}, apperrors.NotFound("queue_item", id)
	}
	return s.QueueGet(ctx, id)
}

// PairItems implements the matcher's atomic pairing: both items transition
// pending -> matched within one transaction, conditioned on both still
// being pending, and the Match row is inserted alongside.
func (s *Store) PairItems(ctx context.Context, withdrawalID, depositID string, match domain.Match) (domain.Match, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Match{}, false, apperrors.StoreError("pair_items", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET status = 'matched', matched_with = $2 WHERE id = $1 AND status = 'pending'
	`, withdrawalID, depositID)
	if err != nil {
		return domain.Match{}, false, apperrors.StoreError("pair_items", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.Match{}, false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE queue_items SET status = 'matched', matched_with = $2 WHERE id = $1 AND status = 'pending'
	`, depositID, withdrawalID)
	if err != nil {
		return domain.Match{}, false, apperrors.StoreError("pair_items", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.Match{}, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, withdrawal_id, deposit_id, amount, score, status, created_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
	`, match.ID, match.WithdrawalID, match.DepositID, match.Amount, match.Score, string(match.Status), match.Note)
	if err != nil {
		return domain.Match{}, false, apperrors.StoreError("pair_items", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Match{}, false, apperrors.StoreError("pair_items", err)
	}
	return match, true, nil
}

func (s *Store) MatchInsert(ctx context.Context, match domain.Match) (domain.Match, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (id, withdrawal_id, deposit_id, amount, score, status, created_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, now(), $7)
	`, match.ID, match.WithdrawalID, match.DepositID, match.Amount, match.Score, string(match.Status), match.Note)
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_insert", err)
	}
	return match, nil
}

func (s *Store) MatchGet(ctx context.Context, id string) (domain.Match, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, withdrawal_id, deposit_id, amount, score, status, created_at, completed_at, note
		FROM matches WHERE id = $1
	`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return domain.Match{}, apperrors.NotFound("match", id)
	}
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_get", err)
	}
	return m, nil
}

func (s *Store) MatchUpdateStatus(ctx context.Context, id string, status domain.MatchStatus, completedAt *time.Time, note string) (domain.Match, error) {
	var completedArg sql.NullTime
	if completedAt != nil {
		completedArg = toNullTime(*completedAt)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE matches SET status = $2, completed_at = COALESCE($3, completed_at), note = COALESCE(NULLIF($4, ''), note)
		WHERE id = $1
	`, id, string(status), completedArg, note)
	if err != nil {
		return domain.Match{}, apperrors.StoreError("match_update_status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Match{}, apperrors.NotFound("match", id)
	}
	return s.MatchGet(ctx, id)
}

func scanQueueItem(scanner rowScanner) (domain.QueueItem, error) {
	var (
		item          domain.QueueItem
		kind          string
		amount        decimal.Decimal
		status        string
		createdAt     time.Time
		matchedWith   sql.NullString
	)
	if err := scanner.Scan(&item.ID, &kind, &item.CustomerID, &amount, &item.PaymentMethod, &item.PaymentDetails,
		&item.Priority, &status, &createdAt, &matchedWith, &item.Notes); err != nil {
		return domain.QueueItem{}, err
	}
	item.Kind = domain.QueueKind(kind)
	item.Amount = amount
	item.Status = domain.QueueStatus(status)
	item.CreatedAt = createdAt
	item.MatchedWith = fromNullString(matchedWith)
	return item, nil
}

func scanMatch(scanner rowScanner) (domain.Match, error) {
	var (
		m           domain.Match
		amount      decimal.Decimal
		status      string
		createdAt   time.Time
		completedAt sql.NullTime
	)
	if err := scanner.Scan(&m.ID, &m.WithdrawalID, &m.DepositID, &amount, &m.Score, &status,
		&createdAt, &completedAt, &m.Note); err != nil {
		return domain.Match{}, err
	}
	m.Amount = amount
	m.Status = domain.MatchStatus(status)
	m.CreatedAt = createdAt
	m.CompletedAt = fromNullTime(completedAt)
	return m, nil
}
