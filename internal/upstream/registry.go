package upstream

import (
	"time"

	"github.com/brightline-ops/bookcore/internal/domain"
	"github.com/brightline-ops/bookcore/internal/normalize"
)

// OperationSpec is one row of the static operation registry (spec §4.2):
// the endpoint subpath, required/default parameters, the envelope shape to
// extract, and the default cache TTL. Adding an operation means adding one
// row here, not a branch in a dispatch switch (see DESIGN NOTES §9).
type OperationSpec struct {
	Name string

	// Path is the endpoint subpath appended to the configured base URL.
	Path string

	// DefaultParams are merged under any caller-supplied params (e.g.
	// agentOwner, agentSite, RRO per the upstream contract in spec §6).
	DefaultParams map[string]string

	// EnvelopeFields names the JSON field(s) carrying the payload. Each
	// entry is a dot path relative to the response root, so a nested
	// envelope like "INFO.LIST" is one entry. A single entry is returned
	// as-is; multiple entries (e.g. "GENERAL" + "EXTRA") are combined
	// into a map keyed by entry.
	EnvelopeFields []string

	// DefaultTTL is the cache TTL applied unless the caller overrides it.
	DefaultTTL time.Duration

	// Normalize converts the raw, unnormalized envelope value into the
	// canonical data model (C4). Nil means the envelope is passed through
	// unchanged — used for operations with no single canonical entity
	// shape (activity feeds, transaction pages, performance rollups).
	Normalize RowNormalizer
}

// RowNormalizer converts a raw envelope value into canonical records,
// reporting how many rows were dropped for missing identity fields.
type RowNormalizer func(raw interface{}) (value interface{}, dropped int, err error)

// DefaultRegistry returns the static operation table from spec §6.
func DefaultRegistry() map[string]OperationSpec {
	common := map[string]string{
		"agentOwner": "1",
		"agentSite":  "1",
		"RRO":        "1",
	}

	rows := []OperationSpec{
		{
			Name:           "getCustomerAdmin",
			Path:           "/agentservice/getCustomerAdmin",
			EnvelopeFields: []string{"LIST"},
			DefaultTTL:     30 * time.Second,
			Normalize:      normalizeCustomerList,
		},
		{
			Name:           "getWeeklyFigureByAgentLite",
			Path:           "/agentservice/getWeeklyFigureByAgentLite",
			EnvelopeFields: []string{"GENERAL", "EXTRA"},
			DefaultTTL:     60 * time.Second,
		},
		{
			Name:           "getPending",
			Path:           "/agentservice/getPending",
			EnvelopeFields: []string{"PENDING"},
			DefaultTTL:     10 * time.Second,
		},
		{
			Name:           "getCustomerDetails",
			Path:           "/agentservice/getCustomerDetails",
			EnvelopeFields: []string{"CUSTOMER"},
			DefaultTTL:     60 * time.Second,
			Normalize:      normalizeCustomerSingle,
		},
		{
			Name:           "getTransactions",
			Path:           "/agentservice/getTransactions",
			EnvelopeFields: []string{"TRANSACTIONS", "TOTAL", "PAGE"},
			DefaultTTL:     30 * time.Second,
		},
		{
			Name:           "getLiveActivity",
			Path:           "/agentservice/getLiveActivity",
			EnvelopeFields: []string{"ACTIVITY"},
			DefaultTTL:     5 * time.Second,
		},
		{
			Name:           "getListAgenstByAgent",
			Path:           "/agentservice/getListAgenstByAgent",
			EnvelopeFields: []string{"GENERAL"},
			DefaultTTL:     300 * time.Second,
			Normalize:      normalizeAgentList,
		},
		{
			Name:           "getAgentPerformance",
			Path:           "/agentservice/getAgentPerformance",
			EnvelopeFields: []string{"INFO.LIST"},
			DefaultTTL:     30 * time.Second,
		},
	}

	registry := make(map[string]OperationSpec, len(rows))
	for _, row := range rows {
		row.DefaultParams = common
		registry[row.Name] = row
	}
	return registry
}

func normalizeCustomerList(raw interface{}) (interface{}, int, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return raw, 0, nil
	}
	out := make([]domain.Customer, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		m, ok := r.(map[string]interface{})
		if !ok {
			dropped++
			continue
		}
		c, ok := normalize.Customer(m)
		if !ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped, nil
}

func normalizeCustomerSingle(raw interface{}) (interface{}, int, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return raw, 0, nil
	}
	c, ok := normalize.Customer(m)
	if !ok {
		return nil, 1, nil
	}
	return c, 0, nil
}

func normalizeAgentList(raw interface{}) (interface{}, int, error) {
	rows, ok := raw.([]interface{})
	if !ok {
		return raw, 0, nil
	}
	out := make([]domain.Agent, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		m, ok := r.(map[string]interface{})
		if !ok {
			dropped++
			continue
		}
		a, ok := normalize.Agent(m)
		if !ok {
			dropped++
			continue
		}
		out = append(out, a)
	}
	return out, dropped, nil
}
