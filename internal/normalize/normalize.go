// Package normalize implements the Normalization Layer (C4): one converter
// per entity type, turning upstream envelopes and local rows into the
// canonical data model (internal/domain). Total functions — they never
// fail on an unrecognized field, only on a missing required identity
// field, in which case the caller drops the record and counts it.
package normalize

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Result counts how many raw records were dropped for missing identity
// fields across a batch normalization call.
type Result struct {
	Dropped int
}

// TrimString strips surrounding whitespace, collapsing the upstream's
// fixed-width string padding.
func TrimString(raw string) string {
	return strings.TrimSpace(raw)
}

// CoerceBool maps Y/1 (case-insensitive) to true and everything else,
// including absent values, to false — the single rule spec §4.4 mandates.
func CoerceBool(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		return strings.EqualFold(trimmed, "Y") || trimmed == "1"
	case float64:
		return v == 1
	case int:
		return v == 1
	default:
		return false
	}
}

// CoerceDecimal parses a numeric string (or passes through a numeric JSON
// value) into a decimal.Decimal, defaulting to zero on any failure —
// normalization never fails on a malformed numeric field.
func CoerceDecimal(raw interface{}) decimal.Decimal {
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(v)
	case int:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case decimal.Decimal:
		return v
	default:
		return decimal.Zero
	}
}

// CoerceInt parses an integer-ish value, defaulting to zero on failure.
func CoerceInt(raw interface{}) int {
	switch v := raw.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// SplitHierarchy flattens a "master / chain" style human-readable string
// into an ordered list of trimmed, non-empty segments.
func SplitHierarchy(raw string) []string {
	parts := strings.Split(raw, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// PermissionsFromFlags normalizes a sprawl of Y/N columns into a single
// permission set, per the REDESIGN FLAGS guidance: the boundary (here) does
// the Y/N -> set<string> conversion; the core works only on the set.
func PermissionsFromFlags(flags map[string]interface{}) map[string]struct{} {
	out := make(map[string]struct{})
	for name, raw := range flags {
		if CoerceBool(raw) {
			out[name] = struct{}{}
		}
	}
	return out
}

// AvailableCredit computes max(0, creditLimit - outstandingCredit).
func AvailableCredit(creditLimit, outstandingCredit decimal.Decimal) decimal.Decimal {
	avail := creditLimit.Sub(outstandingCredit)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// AvailableBalance computes balance - pendingBalance (may be negative).
func AvailableBalance(balance, pendingBalance decimal.Decimal) decimal.Decimal {
	return balance.Sub(pendingBalance)
}
