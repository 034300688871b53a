package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) CustomersList(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, agent_id, login, display_name, phone, email,
		       balance, pending_balance,
		       last_ticket_at, last_verified_at,
		       suspect_bot, zero_balance, active, sportsbook_suspended, casino_suspended
		FROM customers
		WHERE ($1::text IS NULL OR agent_id = $1)
		  AND ($2::text IS NULL OR display_name ILIKE '%' || $2 || '%' OR login ILIKE '%' || $2 || '%')
		ORDER BY id
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, filter.AgentID, nullIfEmpty(filter.Search), limit, filter.Offset)
	if err != nil {
		return nil, apperrors.StoreError("customers_list", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, apperrors.StoreError("customers_list", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *Store) CustomerGet(ctx context.Context, id string) (domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent_id, login, display_name, phone, email,
		       balance, pending_balance,
		       last_ticket_at, last_verified_at,
		       suspect_bot, zero_balance, active, sportsbook_suspended, casino_suspended
		FROM customers WHERE id = $1
	`, id)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return domain.Customer{}, apperrors.NotFound("customer", id)
	}
	if err != nil {
		return domain.Customer{}, apperrors.StoreError("customer_get", err)
	}
	return c, nil
}

func (s *Store) CustomerUpdate(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error) {
	existing, err := s.CustomerGet(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if patch.DisplayName != nil {
		existing.DisplayName = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.Phone != nil {
		existing.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.Email != nil {
		existing.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.SuspectBot != nil {
		existing.SuspectBot = *patch.SuspectBot
	}
	if patch.Active != nil {
		existing.Active = *patch.Active
	}
	if patch.SportsbookSuspended != nil {
		existing.SportsbookSuspended = *patch.SportsbookSuspended
	}
	if patch.CasinoSuspended != nil {
		existing.CasinoSuspended = *patch.CasinoSuspended
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET display_name = $2, phone = $3, email = $4,
		    suspect_bot = $5, active = $6, sportsbook_suspended = $7, casino_suspended = $8,
		    updated_at = now()
		WHERE id = $1
	`, existing.CustomerID, existing.DisplayName, existing.Phone, existing.Email,
		existing.SuspectBot, existing.Active, existing.SportsbookSuspended, existing.CasinoSuspended)
	if err != nil {
		return domain.Customer{}, apperrors.StoreError("customer_update", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Customer{}, apperrors.NotFound("customer", id)
	}
	return existing, nil
}

func (s *Store) CustomerBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM customers WHERE id = $1`, customerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, apperrors.NotFound("customer", customerID)
	}
	if err != nil {
		return decimal.Zero, apperrors.StoreError("customer_balance", err)
	}
	return balance, nil
}

func (s *Store) CreditCustomer(ctx context.Context, customerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balanceAfter decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		UPDATE customers SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance
	`, customerID, amount).Scan(&balanceAfter)
	if err == sql.ErrNoRows {
		return decimal.Zero, apperrors.NotFound("customer", customerID)
	}
	if err != nil {
		return decimal.Zero, apperrors.StoreError("credit_customer", err)
	}
	return balanceAfter, nil
}

func scanCustomer(scanner rowScanner) (domain.Customer, error) {
	var (
		c              domain.Customer
		balance        decimal.Decimal
		pendingBalance decimal.Decimal
		lastTicketAt   sql.NullTime
		lastVerifiedAt sql.NullTime
	)
	if err := scanner.Scan(&c.CustomerID, &c.AgentID, &c.Login, &c.DisplayName, &c.Phone, &c.Email,
		&balance, &pendingBalance, &lastTicketAt, &lastVerifiedAt,
		&c.SuspectBot, &c.ZeroBalance, &c.Active, &c.SportsbookSuspended, &c.CasinoSuspended); err != nil {
		return domain.Customer{}, err
	}
	c.Balance = balance
	c.PendingBalance = pendingBalance
	c.LastTicketAt = fromNullTime(lastTicketAt)
	c.LastVerifiedAt = fromNullTime(lastVerifiedAt)
	return c, nil
}
