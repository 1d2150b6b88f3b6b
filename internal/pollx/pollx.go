// Package pollx implements a bounded poll-until-ready combinator. It is the
// shape needed by any asynchronously-processed resource: probe at a fixed
// interval until the resource is ready, a hard error occurs, or an overall
// deadline elapses.
package pollx

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrDeadline is returned by WaitFor when the condition was still not met
// once the overall deadline elapsed. Callers decide whether that is fatal.
var ErrDeadline = errors.New("condition not met before deadline")

// WaitFor calls probe at the given interval until it reports done, probe
// returns an error, the deadline elapses, or ctx is cancelled.
//
// A probe error is terminal and returned as-is. Deadline expiry returns an
// error matching ErrDeadline via errors.Is.
func WaitFor(ctx context.Context, interval, deadline time.Duration, probe func(ctx context.Context) (bool, error)) error {
	backoff := retry.WithMaxDuration(deadline, retry.NewConstant(interval))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		done, err := probe(ctx)
		if err != nil {
			return err
		}
		if !done {
			return retry.RetryableError(ErrDeadline)
		}
		return nil
	})
}
