package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceBoolSingleRule(t *testing.T) {
	// Y or 1 (in any representation) is true; everything else is false.
	assert.True(t, CoerceBool("Y"))
	assert.True(t, CoerceBool("y"))
	assert.True(t, CoerceBool("1"))
	assert.True(t, CoerceBool(" Y "))
	assert.True(t, CoerceBool(1))
	assert.True(t, CoerceBool(float64(1)))
	assert.True(t, CoerceBool(true))

	assert.False(t, CoerceBool("N"))
	assert.False(t, CoerceBool("0"))
	assert.False(t, CoerceBool("yes"))
	assert.False(t, CoerceBool(""))
	assert.False(t, CoerceBool(nil))
	assert.False(t, CoerceBool(float64(2)))
}

func TestCoerceDecimalNeverFails(t *testing.T) {
	assert.True(t, CoerceDecimal("12.50").Equal(decimal.RequireFromString("12.5")))
	assert.True(t, CoerceDecimal(" 7 ").Equal(decimal.NewFromInt(7)))
	assert.True(t, CoerceDecimal(float64(3)).Equal(decimal.NewFromInt(3)))
	assert.True(t, CoerceDecimal("not-a-number").IsZero())
	assert.True(t, CoerceDecimal(nil).IsZero())
	assert.True(t, CoerceDecimal("").IsZero())
}

func TestSplitHierarchy(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, SplitHierarchy("A / B / C"))
	assert.Equal(t, []string{"MASTER"}, SplitHierarchy("  MASTER  "))
	assert.Empty(t, SplitHierarchy(" / / "))
}

func TestPermissionsFromFlags(t *testing.T) {
	set := PermissionsFromFlags(map[string]interface{}{
		"place_bet":    "Y",
		"view_reports": "1",
		"manage_users": "N",
		"casino":       0,
	})
	assert.Contains(t, set, "place_bet")
	assert.Contains(t, set, "view_reports")
	assert.NotContains(t, set, "manage_users")
	assert.NotContains(t, set, "casino")
}

func TestAvailableCreditClampsAtZero(t *testing.T) {
	avail := AvailableCredit(decimal.NewFromInt(100), decimal.NewFromInt(150))
	assert.True(t, avail.IsZero())

	avail = AvailableCredit(decimal.NewFromInt(100), decimal.NewFromInt(40))
	assert.True(t, avail.Equal(decimal.NewFromInt(60)))
}

func TestAvailableBalanceMayGoNegative(t *testing.T) {
	avail := AvailableBalance(decimal.NewFromInt(50), decimal.NewFromInt(80))
	assert.True(t, avail.Equal(decimal.NewFromInt(-30)))
}

func TestAgentDropsMissingIdentity(t *testing.T) {
	_, ok := Agent(map[string]interface{}{"agentName": "No ID"})
	assert.False(t, ok)
}

func TestAgentNormalizesPaddedRow(t *testing.T) {
	a, ok := Agent(map[string]interface{}{
		"agentID":           "  AG100  ",
		"agentName":         " Main Office ",
		"status":            "active",
		"canPlaceBet":       "Y",
		"rateSports":        "0.25",
		"creditLimit":       "5000",
		"outstandingCredit": "1200",
		"parentAgentID":     " AG001 ",
		"someUnknownField":  "ignored",
	})
	require.True(t, ok)
	assert.Equal(t, "AG100", a.ID)
	assert.Equal(t, "Main Office", a.DisplayName)
	assert.True(t, a.CanPlaceBet)
	assert.True(t, a.RateSports.Equal(decimal.RequireFromString("0.25")))
	require.NotNil(t, a.ParentAgentID)
	assert.Equal(t, "AG001", *a.ParentAgentID)
	assert.True(t, a.AvailableCredit().Equal(decimal.NewFromInt(3800)))
}

func TestAgentFlattensParentHierarchyChain(t *testing.T) {
	a, ok := Agent(map[string]interface{}{
		"agentID":       "AG100",
		"parentAgentID": "TOP / MID / AG001",
	})
	require.True(t, ok)
	require.NotNil(t, a.ParentAgentID)
	assert.Equal(t, "AG001", *a.ParentAgentID)

	a, ok = Agent(map[string]interface{}{
		"agentID":       "AG200",
		"parentAgentID": " / ",
	})
	require.True(t, ok)
	assert.Nil(t, a.ParentAgentID)
}

func TestCustomerRequiresBothIdentityFields(t *testing.T) {
	_, ok := Customer(map[string]interface{}{"customerID": "C1"})
	assert.False(t, ok)

	_, ok = Customer(map[string]interface{}{"agentID": "AG1"})
	assert.False(t, ok)

	c, ok := Customer(map[string]interface{}{
		"customerID":     " C1 ",
		"agentID":        "AG1",
		"balance":        "120.50",
		"pendingBalance": "20.50",
		"active":         "1",
	})
	require.True(t, ok)
	assert.Equal(t, "C1", c.CustomerID)
	assert.True(t, c.Active)
	assert.True(t, c.AvailableBalance().Equal(decimal.NewFromInt(100)))
}

func TestWagerDropsMissingNumber(t *testing.T) {
	_, ok := Wager(map[string]interface{}{"customerID": "C1"})
	assert.False(t, ok)

	w, ok := Wager(map[string]interface{}{
		"wagerNumber":   "777",
		"customerID":    "C1",
		"agentID":       "AG1",
		"amountWagered": "10",
		"toWin":         "25",
	})
	require.True(t, ok)
	assert.Equal(t, int64(777), w.WagerNumber)
	assert.True(t, w.ToWin.Equal(decimal.NewFromInt(25)))
}
