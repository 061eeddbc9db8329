// Package resolver talks to the external build-resolution engine. The
// engine's matching algorithm is a black box: this package only ships
// deliverable URLs to it and hands the raw match sets back.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/finchlyline/relsleuth/internal/model"
)

// Resolver is what the lifecycle manager consumes. Resolve returns one
// raw match set per input URL, in input order. Implementations must
// honour ctx so an in-flight resolution can be aborted by a
// cancellation request; the abort latency is bounded by the engine
// call's own duration.
type Resolver interface {
	Resolve(ctx context.Context, urls []string) ([]model.RawMatchSet, error)
}

// ErrUnknownScheme marks a deliverable locator whose scheme the engine
// cannot fetch.
var ErrUnknownScheme = errors.New("unknown protocol")

var fetchableSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"file":  {},
}

// CheckURL validates a deliverable locator before any engine work
// starts. The error text is relayed verbatim to the caller's failure
// callback, so it names the offending input.
func CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing deliverable url %q: %w", raw, err)
	}
	if _, ok := fetchableSchemes[u.Scheme]; !ok {
		return fmt.Errorf("%w: %q in url %q", ErrUnknownScheme, u.Scheme, raw)
	}
	return nil
}
