package sqlitestore

import (
	"fmt"
	"strings"

	"github.com/nerrad567/tenantgate/internal/store"
)

var sqlOps = map[string]string{
	store.OpGt:  ">",
	store.OpGte: ">=",
	store.OpLt:  "<",
	store.OpLte: "<=",
}

// fieldExpr maps a document field to a SQL expression. Field names are
// validated by store.Filter.Conditions before they reach here.
func fieldExpr(field string) string {
	if field == store.IDField {
		return "id"
	}
	return "json_extract(body, '$." + field + "')"
}

// bindValue converts a filter value to what json_extract yields for it.
// JSON booleans come back from SQLite as 1 and 0.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// whereClause builds the WHERE body for collection and f.
func whereClause(collection string, f store.Filter) (string, []any, error) {
	conds, err := f.Conditions()
	if err != nil {
		return "", nil, err
	}

	parts := []string{"collection = ?"}
	args := []any{collection}

	for _, c := range conds {
		expr := fieldExpr(c.Field)
		switch c.Op {
		case store.OpEq:
			if c.Value == nil {
				parts = append(parts, expr+" IS NULL")
				continue
			}
			parts = append(parts, expr+" = ?")
			args = append(args, bindValue(c.Value))
		case store.OpNe:
			if c.Value == nil {
				parts = append(parts, expr+" IS NOT NULL")
				continue
			}
			parts = append(parts, "("+expr+" IS NULL OR "+expr+" != ?)")
			args = append(args, bindValue(c.Value))
		case store.OpIn:
			list := c.Value.([]any)
			if len(list) == 0 {
				parts = append(parts, "0")
				continue
			}
			placeholders := make([]string, len(list))
			for i, item := range list {
				placeholders[i] = "?"
				args = append(args, bindValue(item))
			}
			parts = append(parts, expr+" IN ("+strings.Join(placeholders, ", ")+")")
		default:
			op, ok := sqlOps[c.Op]
			if !ok {
				return "", nil, fmt.Errorf("%w: unsupported operator %q", store.ErrInvalidQuery, c.Op)
			}
			parts = append(parts, expr+" "+op+" ?")
			args = append(args, bindValue(c.Value))
		}
	}
	return strings.Join(parts, " AND "), args, nil
}

// orderClause builds ORDER BY terms. rowid breaks ties so pagination is stable.
func orderClause(fields []store.SortField) (string, error) {
	terms := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if !store.ValidField(f.Field) {
			return "", fmt.Errorf("%w: sort field %q", store.ErrInvalidQuery, f.Field)
		}
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		terms = append(terms, fieldExpr(f.Field)+" "+dir)
	}
	terms = append(terms, "rowid ASC")
	return strings.Join(terms, ", "), nil
}
