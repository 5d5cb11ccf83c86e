package provision

import (
	"context"
	"net/http"
)

// OutcomeKind tags how a resource came to exist (or not).
type OutcomeKind string

const (
	// OutcomeCreated means the creation call succeeded.
	OutcomeCreated OutcomeKind = "created"

	// OutcomeRecovered means the resource already existed and its
	// identifier was recovered by lookup.
	OutcomeRecovered OutcomeKind = "recovered"

	// OutcomeSkipped means the resource already exists but no identifier
	// could be recovered; the ID is empty and Reason explains why.
	OutcomeSkipped OutcomeKind = "skipped"
)

// Resource is the identifier pair produced by a creation or lookup call.
type Resource struct {
	ID  string
	URL string
}

// Outcome is the inspectable result of reconciled resource creation:
// "already exists" is a normal outcome, not a caught exception.
type Outcome struct {
	Kind   OutcomeKind
	Resource
	Reason string
}

// Exists reports whether the outcome carries a usable identifier.
func (o Outcome) Exists() bool { return o.ID != "" }

// CreateFunc issues the creation call.
type CreateFunc func(ctx context.Context) (Resource, error)

// LookupFunc recovers a pre-existing resource by its natural key. The bool
// result reports whether the resource was found.
type LookupFunc func(ctx context.Context) (Resource, bool, error)

// Ensure makes resource creation idempotent. It invokes create; on a
// conflict-class status (conflictCodes, defaulting to 409) it attempts
// lookup to recover the existing identifier. Resource kinds without a
// reliable lookup pass a nil lookup and get a Skipped outcome. Any other
// failure propagates unchanged.
func Ensure(ctx context.Context, create CreateFunc, lookup LookupFunc, conflictCodes ...int) (Outcome, error) {
	if len(conflictCodes) == 0 {
		conflictCodes = []int{http.StatusConflict}
	}

	res, err := create(ctx)
	if err == nil {
		return Outcome{Kind: OutcomeCreated, Resource: res}, nil
	}

	classified := Classify(err, "create resource", conflictCodes...)
	if classified.Class != ErrorClassConflict {
		return Outcome{}, err
	}

	if lookup == nil {
		return Outcome{Kind: OutcomeSkipped, Reason: "already exists, no lookup for this resource kind"}, nil
	}
	existing, found, err := lookup(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{Kind: OutcomeSkipped, Reason: "already exists, identifier could not be recovered"}, nil
	}
	return Outcome{Kind: OutcomeRecovered, Resource: existing}, nil
}
