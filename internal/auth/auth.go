// Package auth gates who may run reconciliation jobs.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrForbidden is returned when a principal may not run jobs.
var ErrForbidden = errors.New("admin privileges required")

// Principal is the caller of a job.
type Principal struct {
	// Subject identifies the caller in logs and run records.
	Subject string
	// Token is the bearer credential presented by the caller, if any.
	Token string
}

// Authorizer decides whether a principal may run administrative jobs.
type Authorizer interface {
	Authorize(ctx context.Context, p Principal) error
}

// AllowAll authorizes everyone. It backs the local CLI.
type AllowAll struct{}

// Authorize always succeeds.
func (AllowAll) Authorize(context.Context, Principal) error { return nil }

// TokenAuthorizer grants admin to a fixed set of bearer tokens.
type TokenAuthorizer struct {
	tokens [][]byte
}

// NewTokenAuthorizer ignores blank tokens.
func NewTokenAuthorizer(tokens []string) *TokenAuthorizer {
	a := &TokenAuthorizer{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t != "" {
			a.tokens = append(a.tokens, []byte(t))
		}
	}
	return a
}

// Authorize checks p.Token against the configured tokens.
func (a *TokenAuthorizer) Authorize(ctx context.Context, p Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	presented := []byte(p.Token)
	if len(presented) == 0 {
		return ErrForbidden
	}
	ok := 0
	for _, t := range a.tokens {
		ok |= subtle.ConstantTimeCompare(presented, t)
	}
	if ok != 1 {
		return ErrForbidden
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
