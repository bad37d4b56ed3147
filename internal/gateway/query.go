package gateway

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/validation"
)

// QueryOptions controls paging and ordering.
type QueryOptions struct {
	// Page is 1-based. Zero means no paging: the first Limit documents are
	// returned and no total is counted.
	Page  int
	Limit int
	// OrderBy defaults to insertion order.
	OrderBy        []store.SortField
	IncludeDeleted bool
}

// QueryResult is one page of documents.
type QueryResult struct {
	Items []store.Document `json:"items"`
	// Total is set only when a page was requested.
	Total *int64 `json:"total,omitempty"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit"`
}

// ParseOrderBy parses "field", "-field", "field desc" or a comma-separated
// list of those.
func ParseOrderBy(s string) ([]store.SortField, error) {
	var out []store.SortField
	for _, term := range strings.Split(s, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		var sf store.SortField
		fields := strings.Fields(term)
		switch len(fields) {
		case 1:
			sf.Field = fields[0]
		case 2:
			sf.Field = fields[0]
			switch strings.ToLower(fields[1]) {
			case "asc":
			case "desc":
				sf.Desc = true
			default:
				return nil, validation.Invalid("orderBy", "invalid", fmt.Sprintf("unknown direction %q", fields[1]))
			}
		default:
			return nil, validation.Invalid("orderBy", "invalid", fmt.Sprintf("cannot parse %q", term))
		}
		if strings.HasPrefix(sf.Field, "-") {
			sf.Field = sf.Field[1:]
			sf.Desc = true
		}
		if !store.ValidField(sf.Field) {
			return nil, validation.Invalid("orderBy", "invalid", fmt.Sprintf("invalid field %q", sf.Field))
		}
		out = append(out, sf)
	}
	return out, nil
}

// Query returns documents of collection matching filter within the caller's
// organization.
func (g *Gateway) Query(ctx context.Context, token, collection string, filter store.Filter, opts QueryOptions) (*QueryResult, error) {
	start := time.Now()
	p, err := g.authorize(ctx, token, collection, auth.ActionRead)
	if err != nil {
		g.emit(observer.OpQuery, collection, p, start, err, "", 0)
		return nil, err
	}

	res, err := g.query(ctx, p, collection, filter, opts)
	items := 0
	if res != nil {
		items = len(res.Items)
	}
	g.emit(observer.OpQuery, collection, p, start, err, "", items)
	return res, err
}

func (g *Gateway) query(ctx context.Context, p *auth.Principal, collection string, filter store.Filter, opts QueryOptions) (*QueryResult, error) {
	if err := checkQueryFields(collection, filter, opts.OrderBy); err != nil {
		return nil, err
	}
	if opts.Page < 0 {
		return nil, validation.Invalid("page", validation.RuleMin, "page must not be negative")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = g.cfg.DefaultPageSize
	}
	if limit > g.cfg.MaxPageSize {
		limit = g.cfg.MaxPageSize
	}

	scoped := scopeFilter(filter, collection, p, opts.IncludeDeleted)
	q := store.Query{Filter: scoped, Sort: opts.OrderBy, Limit: limit}
	if opts.Page > 0 {
		if opts.Page-1 > math.MaxInt/limit {
			return nil, validation.Invalid("page", validation.RuleMax,
				fmt.Sprintf("page must be at most %d for a page size of %d", math.MaxInt/limit+1, limit))
		}
		q.Skip = (opts.Page - 1) * limit
	}

	var docs []store.Document
	err := g.storageCall(ctx, "find", collection, func(ctx context.Context) error {
		var err error
		docs, err = g.store.Find(ctx, collection, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &QueryResult{Items: make([]store.Document, len(docs)), Limit: limit}
	for i, d := range docs {
		res.Items[i] = sanitize(collection, d)
	}

	if opts.Page > 0 {
		var total int64
		err := g.storageCall(ctx, "count", collection, func(ctx context.Context) error {
			var err error
			total, err = g.store.Count(ctx, collection, scoped)
			return err
		})
		if err != nil {
			return nil, err
		}
		res.Total = &total
		res.Page = opts.Page
	}
	return res, nil
}

// checkQueryFields validates filter and sort fields and rejects sensitive ones.
func checkQueryFields(collection string, filter store.Filter, sort []store.SortField) error {
	if _, err := filter.Conditions(); err != nil {
		return validation.Invalid("filter", "invalid", strings.TrimPrefix(err.Error(), store.ErrInvalidQuery.Error()+": "))
	}
	for field := range filter {
		if isSensitive(collection, field) {
			return validation.Invalid("filter", "forbiddenField", fmt.Sprintf("cannot filter on %q", field))
		}
	}
	for _, s := range sort {
		if !store.ValidField(s.Field) {
			return validation.Invalid("orderBy", "invalid", fmt.Sprintf("invalid field %q", s.Field))
		}
		if isSensitive(collection, s.Field) {
			return validation.Invalid("orderBy", "forbiddenField", fmt.Sprintf("cannot sort on %q", s.Field))
		}
	}
	return nil
}
