package pricing

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"tradecal/internal/domain"
)

// DefaultBatchWorkers bounds ResolveBatch when no limit is given.
const DefaultBatchWorkers = 8

// Query is one point-in-time lookup.
type Query struct {
	Asset string
	Field domain.Field
	At    time.Time
}

// Result pairs a query with its outcome. Err is set only for that query.
type Result struct {
	Query Query
	Value Value
	Err   error
}

// ResolveBatch resolves independent queries concurrently with at most
// workers in flight. A failing query records its error in its own Result and
// does not stop the others; results keep the order of queries.
func (r *Resolver) ResolveBatch(ctx context.Context, queries []Query, workers int) []Result {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	results := make([]Result, len(queries))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Query: q, Value: Missing(), Err: err}
				return nil
			}
			v, err := r.Resolve(ctx, q.Asset, q.Field, q.At)
			results[i] = Result{Query: q, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
