package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QueueKind distinguishes a withdrawal request from a deposit request.
type QueueKind string

const (
	QueueWithdrawal QueueKind = "withdrawal"
	QueueDeposit    QueueKind = "deposit"
)

// QueueStatus is the lifecycle state of a QueueItem.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueMatched    QueueStatus = "matched"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueItem is a withdrawal or deposit request awaiting a match.
type QueueItem struct {
	ID             string
	Kind           QueueKind
	CustomerID     string
	Amount         decimal.Decimal
	PaymentMethod  string
	PaymentDetails string
	Priority       int
	Status         QueueStatus
	CreatedAt      time.Time
	MatchedWith    *string
	Notes          string
}

// QueueFilter narrows queue_list results.
type QueueFilter struct {
	Kind   *QueueKind
	Status *QueueStatus
	Limit  int
	Offset int
}

// MatchStatus is the lifecycle state of a Match.
type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchProcessing MatchStatus = "processing"
	MatchCompleted  MatchStatus = "completed"
	MatchFailed     MatchStatus = "failed"
)

// Match pairs one withdrawal QueueItem with one deposit QueueItem.
type Match struct {
	ID           string
	WithdrawalID string
	DepositID    string
	Amount       decimal.Decimal
	Score        int
	Status       MatchStatus
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Note         string
}
