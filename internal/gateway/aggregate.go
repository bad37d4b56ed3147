package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// Aggregate runs a $match/$group/$sort/$limit pipeline over the caller's
// non-deleted documents. Results are capped at Config.MaxAggregateResults.
func (g *Gateway) Aggregate(ctx context.Context, token, collection string, raw []map[string]any) ([]store.Document, error) {
	start := time.Now()
	p, err := g.authorize(ctx, token, collection, auth.ActionRead)
	if err != nil {
		g.emit(observer.OpAggregate, collection, p, start, err, "", 0)
		return nil, err
	}

	docs, err := g.aggregate(ctx, p, collection, raw)
	g.emit(observer.OpAggregate, collection, p, start, err, "", len(docs))
	return docs, err
}

func (g *Gateway) aggregate(ctx context.Context, p *auth.Principal, collection string, raw []map[string]any) ([]store.Document, error) {
	pipeline, err := store.ParsePipeline(raw)
	if err != nil {
		return nil, validation.Invalid("pipeline", "invalid", strings.TrimPrefix(err.Error(), store.ErrInvalidQuery.Error()+": "))
	}
	if field, ok := sensitiveReference(collection, pipeline); ok {
		return nil, validation.Invalid("pipeline", "forbiddenField", fmt.Sprintf("cannot aggregate on %q", field))
	}

	scoped := make(store.Pipeline, 0, len(pipeline)+2)
	scoped = append(scoped, store.MatchStage{Filter: scopeFilter(nil, collection, p, false)})
	scoped = append(scoped, pipeline...)
	scoped = append(scoped, store.LimitStage{N: g.cfg.MaxAggregateResults})

	var docs []store.Document
	err = g.storageCall(ctx, "aggregate", collection, func(ctx context.Context) error {
		var err error
		docs, err = g.store.Aggregate(ctx, collection, scoped)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(docs) > g.cfg.MaxAggregateResults {
		docs = docs[:g.cfg.MaxAggregateResults]
	}
	for i, d := range docs {
		docs[i] = sanitize(collection, d)
	}
	return docs, nil
}

// sensitiveReference returns the first sensitive field the pipeline reads.
func sensitiveReference(collection string, p store.Pipeline) (string, bool) {
	check := func(field string) bool { return field != "" && isSensitive(collection, field) }
	for _, stage := range p {
		switch s := stage.(type) {
		case store.MatchStage:
			for field := range s.Filter {
				if check(field) {
					return field, true
				}
			}
		case store.GroupStage:
			for _, k := range s.Key {
				if check(k.Field) {
					return k.Field, true
				}
			}
			for _, a := range s.Accumulators {
				if check(a.Field) {
					return a.Field, true
				}
			}
		case store.SortStage:
			for _, f := range s.Fields {
				if check(f.Field) {
					return f.Field, true
				}
			}
		}
	}
	return "", false
}
