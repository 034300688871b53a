package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// KPISnapshot is the headline figures shown on the live dashboard.
type KPISnapshot struct {
	Revenue        decimal.Decimal
	ActivePlayers  int
	PendingCount   int
	TotalLiability decimal.Decimal
}

// WeeklyFigures summarizes the trailing week's activity.
type WeeklyFigures struct {
	Handle decimal.Decimal
	Win    decimal.Decimal
	Volume decimal.Decimal
	Bets   int
}

// Activity is one recent matcher/ledger event surfaced on the live feed.
type Activity struct {
	Timestamp time.Time
	Kind      string
	Message   string
}

// LiveSnapshot is the point-in-time aggregate produced by the live fabric
// (C7) and published to every subscriber.
type LiveSnapshot struct {
	Timestamp    time.Time
	KPI          KPISnapshot
	Weekly       WeeklyFigures
	PendingItems []QueueItem
	Activities   []Activity
}

const (
	// MaxPendingItems bounds LiveSnapshot.PendingItems per spec §3.
	MaxPendingItems = 10
	// MaxActivities bounds LiveSnapshot.Activities per spec §3.
	MaxActivities = 10
)
