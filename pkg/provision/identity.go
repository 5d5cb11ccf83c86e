package provision

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/envforge/envforge/pkg/graph"
)

// IdentityResolver maps email addresses to directory object ids, caching
// both hits and misses for the lifetime of a run. It never returns an
// error: an unresolvable identity yields "" and a logged warning, and
// callers proceed unassigned.
type IdentityResolver struct {
	graph *graph.Client
	cache map[string]string // "" caches a negative result
	log   zerolog.Logger
}

// NewIdentityResolver creates a resolver with an empty per-run cache.
func NewIdentityResolver(client *graph.Client, logger zerolog.Logger) *IdentityResolver {
	return &IdentityResolver{
		graph: client,
		cache: make(map[string]string),
		log:   logger,
	}
}

// Resolve returns the directory object id for email, or "" when the
// identity cannot be resolved.
func (r *IdentityResolver) Resolve(ctx context.Context, token, email string) string {
	if id, ok := r.cache[email]; ok {
		return id
	}
	user, err := r.graph.UserByEmail(ctx, token, email)
	if err != nil {
		r.log.Warn().Err(err).Str("email", email).Msg("identity not resolved, proceeding unassigned")
		r.cache[email] = ""
		return ""
	}
	r.cache[email] = user.ID
	return user.ID
}
