package authgate

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

const testSecret = "test-secret-for-authgate"

func TestMintAndVerifyRoundTrip(t *testing.T) {
	g := New(testSecret, time.Hour)

	scope := "agent-7"
	token, err := g.Mint("u-1", "operator", domain.RoleManager, &scope, []string{"settle", "match"})
	require.NoError(t, err)

	p, err := g.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "operator", p.Username)
	assert.Equal(t, domain.RoleManager, p.Role)
	require.NotNil(t, p.AgentScope)
	assert.Equal(t, "agent-7", *p.AgentScope)
	assert.True(t, p.HasPermission("settle"))
	assert.False(t, p.HasPermission("admin"))
	assert.True(t, p.ExpiresAt.After(time.Now()))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	g := New(testSecret, time.Hour)
	other := New("a-different-secret", time.Hour)

	token, err := other.Mint("u-1", "operator", domain.RoleViewer, nil, nil)
	require.NoError(t, err)

	_, err = g.Verify(token)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	g := New(testSecret, time.Hour)

	claims := Claims{
		Username: "operator",
		Role:     string(domain.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = g.Verify(signed)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
}

func TestVerifyRejectsMissingToken(t *testing.T) {
	g := New(testSecret, time.Hour)
	_, err := g.Verify("")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	g := New(testSecret, time.Hour)

	claims := Claims{
		Username: "operator",
		Role:     "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = g.Verify(signed)
	require.Error(t, err)
}

// Role monotonicity: anything allowed at a lower role is allowed at every
// higher role, and admin is allowed everywhere.
func TestRequireRoleMonotonic(t *testing.T) {
	roles := []domain.Role{domain.RoleViewer, domain.RoleAgent, domain.RoleManager, domain.RoleAdmin}
	for i, min := range roles {
		for j, have := range roles {
			err := Require(domain.AuthPrincipal{Role: have}, min)
			if j >= i {
				assert.NoError(t, err, "role %s should satisfy %s", have, min)
			} else {
				require.Error(t, err, "role %s should not satisfy %s", have, min)
				assert.Equal(t, apperrors.KindAuth, apperrors.GetKind(err))
			}
		}
	}
}

func TestRequireAgentScope(t *testing.T) {
	scope := "agent-7"
	agentPrincipal := domain.AuthPrincipal{Role: domain.RoleAgent, AgentScope: &scope}

	assert.NoError(t, RequireAgentScope(agentPrincipal, "agent-7"))
	assert.Error(t, RequireAgentScope(agentPrincipal, "agent-9"))

	// Manager and above bypass the scope check entirely.
	assert.NoError(t, RequireAgentScope(domain.AuthPrincipal{Role: domain.RoleManager}, "agent-9"))
	assert.NoError(t, RequireAgentScope(domain.AuthPrincipal{Role: domain.RoleAdmin}, "agent-9"))
}
