// Package identity resolves the external principal/user_id pair used to key
// journal entries, LP positions, and market bets. Grounded on spec.md §9's
// Open Question about `{principal}_{user_id}` synthesis: rather than
// silently rewriting colliding identities (as the admin ETL historically
// did), a collision is surfaced as a hard error unless the operator has
// explicitly opted in via config (kongd/config.SettingsConfig).
package identity

import (
	"github.com/pkg/errors"

	"github.com/KongSwap/kong-sub000/kongd/logger"
)

var log = logger.Get(logger.SubsystemTags.KOND)

// ErrAmbiguousPrincipal is returned by Resolve when a principal already maps
// to a different user_id and rewriting has not been enabled.
var ErrAmbiguousPrincipal = errors.New("principal already bound to a different user_id")

// Registry maps host-chain principals to the internal user_id used
// throughout the core (journal, pool positions, market bets).
type Registry struct {
	byPrincipal map[string]string
	// RewriteDuplicatePrincipals, when true, synthesizes a
	// "{principal}_{user_id}" fallback identity instead of erroring on a
	// collision (spec.md §9 Open Question, resolved: hard error by default).
	RewriteDuplicatePrincipals bool
}

// NewRegistry returns an empty principal registry.
func NewRegistry(rewriteDuplicates bool) *Registry {
	return &Registry{
		byPrincipal:                make(map[string]string),
		RewriteDuplicatePrincipals: rewriteDuplicates,
	}
}

// Resolve binds principal to userID, or confirms an existing binding
// matches. A principal already bound to a *different* user_id is an error
// unless RewriteDuplicatePrincipals is set, in which case a synthesized
// "{principal}_{userID}" identity is returned instead of silently colliding.
func (r *Registry) Resolve(principal, userID string) (string, error) {
	if existing, ok := r.byPrincipal[principal]; ok {
		if existing == userID {
			return userID, nil
		}
		if !r.RewriteDuplicatePrincipals {
			return "", errors.Wrapf(ErrAmbiguousPrincipal, "principal %s already bound to %s, got %s", principal, existing, userID)
		}
		synthesized := principal + "_" + userID
		log.Warnf("rewriting colliding principal %s: %s -> %s", principal, userID, synthesized)
		return synthesized, nil
	}
	r.byPrincipal[principal] = userID
	return userID, nil
}

// Lookup returns the user_id bound to principal, if any.
func (r *Registry) Lookup(principal string) (string, bool) {
	userID, ok := r.byPrincipal[principal]
	return userID, ok
}
