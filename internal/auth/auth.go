// Package auth exposes the authentication capability consumed by the write
// path. Token verification mechanics live behind the Verifier interface;
// the orchestration services only require a resolved principal.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/faults"
)

// Principal identifies an authenticated caller and the role it carries.
type Principal struct {
	ID   string
	Role string
}

// CanWrite reports whether the principal's role grants write access.
func (p Principal) CanWrite() bool {
	return p.Role == domain.RoleAdmin || p.Role == domain.RoleWriter
}

// Verifier resolves a bearer token to an authenticated principal. It fails
// with faults.ErrUnauthenticated when the token is unknown or malformed.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// StaticVerifier authenticates against a fixed token table. It exists so
// the core can be wired and tested without an external identity provider.
type StaticVerifier struct {
	tokens map[string]Principal
}

// NewStaticVerifier parses token table entries of the form
// token:principal:role.
func NewStaticVerifier(entries []string) (*StaticVerifier, error) {
	tokens := make(map[string]Principal, len(entries))
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("auth: malformed token entry %q, want token:principal:role", entry)
		}
		tokens[parts[0]] = Principal{ID: parts[1], Role: parts[2]}
	}
	return &StaticVerifier{tokens: tokens}, nil
}

// Verify resolves the token against the static table.
func (v *StaticVerifier) Verify(_ context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("auth: empty token: %w", faults.ErrUnauthenticated)
	}
	principal, ok := v.tokens[token]
	if !ok {
		return Principal{}, fmt.Errorf("auth: unknown token: %w", faults.ErrUnauthenticated)
	}
	return principal, nil
}
