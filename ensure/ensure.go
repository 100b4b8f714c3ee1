// Package ensure polls every node of a service until they all agree a
// resource (a bucket, an index, a manifest revision) has converged, or a
// deadline runs out first.
package ensure

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchbaselabs/gocbcorex/corebase"
)

// NodeCheck reports whether one node currently satisfies the condition
// being waited on.
type NodeCheck func(ctx context.Context, nodeID string) (bool, error)

// PollInterval is how often Converge re-polls nodes that haven't yet
// converged; it does not back off since the caller already bounds total
// wait time via ctx.
const PollInterval = 100 * time.Millisecond

// Converge polls check against every id in nodeIDs concurrently, repeating
// every PollInterval until every node reports true, ctx is done, or a
// check call returns a hard error (as opposed to simply not-yet-converged,
// reported as false/nil). Node checks run with golang.org/x/sync/errgroup
// fan-out so one node's latency doesn't serialize the whole poll round.
func Converge(ctx context.Context, nodeIDs []string, check NodeCheck) error {
	if len(nodeIDs) == 0 {
		return nil
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		ok, err := pollOnce(ctx, nodeIDs, check)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return corebase.NewTimeout(false, nil)
		case <-ticker.C:
		}
	}
}

func pollOnce(ctx context.Context, nodeIDs []string, check NodeCheck) (bool, error) {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]bool, len(nodeIDs))

	for i, id := range nodeIDs {
		i, id := i, id
		g.Go(func() error {
			ok, err := check(ctx, id)
			if err != nil {
				return err
			}
			results[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
