package gateway

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// BatchOp is the operation applied to every item of a batch.
type BatchOp string

// Supported batch operations.
const (
	BatchCreate BatchOp = "create"
	BatchUpdate BatchOp = "update"
	BatchDelete BatchOp = "delete"
)

// ParseBatchOp converts s to a BatchOp.
func ParseBatchOp(s string) (BatchOp, error) {
	switch op := BatchOp(s); op {
	case BatchCreate, BatchUpdate, BatchDelete:
		return op, nil
	}
	return "", validation.Invalid("operation", "invalid", fmt.Sprintf("unknown batch operation %q", s))
}

func (op BatchOp) action() auth.Action {
	switch op {
	case BatchUpdate:
		return auth.ActionUpdate
	case BatchDelete:
		return auth.ActionDelete
	default:
		return auth.ActionCreate
	}
}

// BatchItem is one unit of work. ID is required for update and delete;
// Data for create and update.
type BatchItem struct {
	ID   string         `json:"id,omitempty"`
	Data store.Document `json:"data,omitempty"`
}

// BatchItemResult is a successful item.
type BatchItemResult struct {
	Index int            `json:"index"`
	ID    string         `json:"id"`
	Data  store.Document `json:"data,omitempty"`
}

// BatchItemError is a failed item.
type BatchItemError struct {
	Index      int                    `json:"index"`
	ID         string                 `json:"id,omitempty"`
	Kind       Kind                   `json:"code"`
	Message    string                 `json:"error"`
	Violations []validation.Violation `json:"violations,omitempty"`
}

// BatchSummary counts item outcomes.
type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BatchResult reports every item in input order.
type BatchResult struct {
	Results []BatchItemResult `json:"results"`
	Errors  []BatchItemError  `json:"errors"`
	Summary BatchSummary      `json:"summary"`
}

// Batch applies op to every item independently. Authentication and the
// permission check happen once; a batch over Config.MaxBatchItems is
// rejected before any item runs. Item failures are reported per item and
// never abort the batch. Committed items are not rolled back when ctx is
// cancelled.
func (g *Gateway) Batch(ctx context.Context, token string, op BatchOp, collection string, items []BatchItem) (*BatchResult, error) {
	start := time.Now()
	res, p, err := g.batch(ctx, token, op, collection, items)
	n := 0
	if res != nil {
		n = res.Summary.Success
	}
	g.emit(observer.OpBatch, collection, p, start, err, "", n)
	return res, err
}

func (g *Gateway) batch(ctx context.Context, token string, op BatchOp, collection string, items []BatchItem) (*BatchResult, *auth.Principal, error) {
	if _, err := ParseBatchOp(string(op)); err != nil {
		return nil, nil, err
	}
	p, err := g.authorize(ctx, token, collection, op.action())
	if err != nil {
		return nil, p, err
	}
	if len(items) > g.cfg.MaxBatchItems {
		return nil, p, validation.Invalid("items", validation.RuleMaxLength,
			fmt.Sprintf("batch of %d items exceeds the maximum of %d", len(items), g.cfg.MaxBatchItems))
	}
	return g.runItems(ctx, p, op, collection, items), p, nil
}

// runItems processes items with bounded concurrency and collects the
// outcomes by input index.
func (g *Gateway) runItems(ctx context.Context, p *auth.Principal, op BatchOp, collection string, items []BatchItem) *BatchResult {
	type outcome struct {
		id   string
		data store.Document
		err  error
	}
	outcomes := make([]outcome, len(items))

	var eg errgroup.Group
	eg.SetLimit(g.cfg.BatchConcurrency)
	for i, item := range items {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = outcome{id: item.ID, err: &StorageError{Op: string(op), Collection: collection, Err: err}}
				return nil
			}
			var o outcome
			switch op {
			case BatchCreate:
				o.data, o.err = g.create(ctx, p, collection, item.Data)
				o.id = o.data.ID()
			case BatchUpdate:
				o.id = item.ID
				o.data, o.err = g.update(ctx, p, collection, item.ID, item.Data)
			case BatchDelete:
				o.id = item.ID
				o.err = g.delete(ctx, p, collection, item.ID)
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = eg.Wait() //nolint:errcheck // item goroutines never return errors

	res := &BatchResult{
		Results: []BatchItemResult{},
		Errors:  []BatchItemError{},
		Summary: BatchSummary{Total: len(items)},
	}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, BatchItemError{
				Index:      i,
				ID:         o.id,
				Kind:       KindOf(o.err),
				Message:    PublicMessage(o.err),
				Violations: Violations(o.err),
			})
			res.Summary.Failed++
			continue
		}
		res.Results = append(res.Results, BatchItemResult{Index: i, ID: o.id, Data: o.data})
		res.Summary.Success++
	}
	return res
}
