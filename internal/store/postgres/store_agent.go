package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

func (s *Store) AgentsList(ctx context.Context, filter domain.AgentFilter) ([]domain.Agent, error) {
	query := `
		SELECT id, display_name, parent_agent_id, status, can_place_bet,
		       rate_internet, rate_casino, rate_sports, rate_prop, rate_live_casino,
		       credit_limit, outstanding_credit
		FROM agents
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR parent_agent_id = $2)
		ORDER BY id
	`
	var statusArg, parentArg *string
	if filter.Status != nil {
		v := string(*filter.Status)
		statusArg = &v
	}
	parentArg = filter.ParentAgentID

	rows, err := s.db.QueryContext(ctx, query, statusArg, parentArg)
	if err != nil {
		return nil, apperrors.StoreError("agents_list", err)
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, apperrors.StoreError("agents_list", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AgentGet(ctx context.Context, id string) (domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, parent_agent_id, status, can_place_bet,
		       rate_internet, rate_casino, rate_sports, rate_prop, rate_live_casino,
		       credit_limit, outstanding_credit
		FROM agents WHERE id = $1
	`, id)
	a, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return domain.Agent{}, apperrors.NotFound("agent", id)
	}
	if err != nil {
		return domain.Agent{}, apperrors.StoreError("agent_get", err)
	}
	return a, nil
}

func (s *Store) AgentUpdate(ctx context.Context, id string, patch domain.AgentPatch) (domain.Agent, error) {
	existing, err := s.AgentGet(ctx, id)
	if err != nil {
		return domain.Agent{}, err
	}

	applyAgentPatch(&existing, patch)

	result, err := s.db.ExecContext(ctx, `
		UPDATE agents
		SET display_name = $2, status = $3, can_place_bet = $4,
		    rate_internet = $5, rate_casino = $6, rate_sports = $7,
		    rate_prop = $8, rate_live_casino = $9, credit_limit = $10,
		    updated_at = now()
		WHERE id = $1
	`, existing.ID, existing.DisplayName, string(existing.Status), existing.CanPlaceBet,
		existing.RateInternet, existing.RateCasino, existing.RateSports,
		existing.RateProp, existing.RateLiveCasino, existing.CreditLimit)
	if err != nil {
		return domain.Agent{}, apperrors.StoreError("agent_update", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Agent{}, apperrors.NotFound("agent", id)
	}
	return existing, nil
}

func applyAgentPatch(a *domain.Agent, patch domain.AgentPatch) {
	if patch.DisplayName != nil {
		a.DisplayName = strings.TrimSpace(*patch.DisplayName)
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.CanPlaceBet != nil {
		a.CanPlaceBet = *patch.CanPlaceBet
	}
	if patch.RateInternet != nil {
		a.RateInternet = *patch.RateInternet
	}
	if patch.RateCasino != nil {
		a.RateCasino = *patch.RateCasino
	}
	if patch.RateSports != nil {
		a.RateSports = *patch.RateSports
	}
	if patch.RateProp != nil {
		a.RateProp = *patch.RateProp
	}
	if patch.RateLiveCasino != nil {
		a.RateLiveCasino = *patch.RateLiveCasino
	}
	if patch.CreditLimit != nil {
		a.CreditLimit = *patch.CreditLimit
	}
}

func scanAgent(scanner rowScanner) (domain.Agent, error) {
	var (
		a               domain.Agent
		parentAgentID   sql.NullString
		status          string
		rateInternet    decimal.Decimal
		rateCasino      decimal.Decimal
		rateSports      decimal.Decimal
		rateProp        decimal.Decimal
		rateLiveCasino  decimal.Decimal
		creditLimit     decimal.Decimal
		outstandingDebt decimal.Decimal
	)
	if err := scanner.Scan(&a.ID, &a.DisplayName, &parentAgentID, &status, &a.CanPlaceBet,
		&rateInternet, &rateCasino, &rateSports, &rateProp, &rateLiveCasino,
		&creditLimit, &outstandingDebt); err != nil {
		return domain.Agent{}, err
	}
	a.ParentAgentID = fromNullString(parentAgentID)
	a.Status = domain.AgentStatus(status)
	a.RateInternet = rateInternet
	a.RateCasino = rateCasino
	a.RateSports = rateSports
	a.RateProp = rateProp
	a.RateLiveCasino = rateLiveCasino
	a.CreditLimit = creditLimit
	a.OutstandingCredit = outstandingDebt
	return a, nil
}
