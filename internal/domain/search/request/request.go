// Package request holds the parameters of a similarity search.
package request

import "github.com/kailas-cloud/coderag/internal/domain/search/filter"

// DefaultLimit is used when Options.Limit is not positive.
const DefaultLimit = 5

// MaxLimit caps how many results a caller may ask for.
const MaxLimit = 100

// Options narrows a similarity search.
type Options struct {
	Limit int
	// MinScore drops results below it when positive.
	MinScore float64
	Filter   filter.Filter
}

// EffectiveLimit returns Limit clamped to [1, MaxLimit], DefaultLimit when unset.
func (o Options) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultLimit
	case o.Limit > MaxLimit:
		return MaxLimit
	default:
		return o.Limit
	}
}
