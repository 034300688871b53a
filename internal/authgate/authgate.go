// Package authgate implements the Auth Gate (C9): bearer-token
// verification producing an AuthPrincipal, plus role and agent-scope
// enforcement. It is a pure function layer usable by any transport — the
// HTTP collaborator calls Verify/Require; nothing here touches a request.
package authgate

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/brightline-ops/bookcore/internal/apperrors"
	"github.com/brightline-ops/bookcore/internal/domain"
)

// Claims is the JWT claim set carried by operator tokens.
type Claims struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	AgentScope  string   `json:"agent_scope,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Gate verifies tokens against a symmetric secret and enforces roles.
type Gate struct {
	secret   []byte
	tokenTTL time.Duration
}

// New builds a Gate. tokenTTL applies only to minted tokens; verification
// always enforces the token's own expiry strictly.
func New(secret string, tokenTTL time.Duration) *Gate {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Gate{secret: []byte(strings.TrimSpace(secret)), tokenTTL: tokenTTL}
}

// Verify parses and validates token, returning the principal it encodes.
// Expiry is enforced strictly: now must be before expires_at.
func (g *Gate) Verify(token string) (domain.AuthPrincipal, error) {
	if len(g.secret) == 0 {
		return domain.AuthPrincipal{}, apperrors.Internal("auth secret not configured", nil)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.AuthPrincipal{}, apperrors.Unauthorized("missing authentication token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.Unauthorized("unexpected signing method")
		}
		return g.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.AuthPrincipal{}, apperrors.TokenExpired()
		}
		return domain.AuthPrincipal{}, apperrors.InvalidToken(err)
	}
	if !parsed.Valid {
		return domain.AuthPrincipal{}, apperrors.Unauthorized("invalid token")
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	switch role {
	case domain.RoleViewer, domain.RoleAgent, domain.RoleManager, domain.RoleAdmin:
	default:
		return domain.AuthPrincipal{}, apperrors.Unauthorized("unknown role")
	}

	p := domain.AuthPrincipal{
		UserID:      claims.Subject,
		Username:    claims.Username,
		Role:        role,
		Permissions: make(map[string]struct{}, len(claims.Permissions)),
	}
	if scope := strings.TrimSpace(claims.AgentScope); scope != "" {
		p.AgentScope = &scope
	}
	for _, perm := range claims.Permissions {
		if perm = strings.TrimSpace(perm); perm != "" {
			p.Permissions[perm] = struct{}{}
		}
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if !p.ExpiresAt.IsZero() && !time.Now().Before(p.ExpiresAt) {
		return domain.AuthPrincipal{}, apperrors.TokenExpired()
	}
	return p, nil
}

// Mint issues a signed token for the given identity. Used by the login
// collaborator and by tests; the gate itself never calls it on a request
// path.
func (g *Gate) Mint(userID, username string, role domain.Role, agentScope *string, permissions []string) (string, error) {
	if len(g.secret) == 0 {
		return "", apperrors.Internal("auth secret not configured", nil)
	}
	now := time.Now()
	claims := Claims{
		Username:    username,
		Role:        string(role),
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.tokenTTL)),
		},
	}
	if agentScope != nil {
		claims.AgentScope = *agentScope
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", apperrors.Internal("sign token", err)
	}
	return signed, nil
}

// Require passes iff p holds at least the given role. Admin passes
// everywhere by the role order viewer < agent < manager < admin.
func Require(p domain.AuthPrincipal, min domain.Role) error {
	if p.Role.AtLeast(min) {
		return nil
	}
	return apperrors.Forbidden("insufficient role").
		WithDetails("have", string(p.Role)).
		WithDetails("need", string(min))
}

// RequireAgentScope passes when the operation's target agent is within the
// principal's scope: either the principal's agent_scope equals the target,
// or the principal is manager-or-above.
func RequireAgentScope(p domain.AuthPrincipal, targetAgentID string) error {
	if p.Role.AtLeast(domain.RoleManager) {
		return nil
	}
	if p.AgentScope != nil && *p.AgentScope == targetAgentID {
		return nil
	}
	return apperrors.Forbidden("agent outside principal scope").
		WithDetails("target", targetAgentID)
}
