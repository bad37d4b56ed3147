package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/tenantgate/internal/store"
)

// Store keeps every collection in the documents table as JSON bodies.
//
// Thread Safety:
//   - Safe for concurrent use; database/sql serialises access to SQLite.
type Store struct {
	db *sql.DB
}

// New wraps an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ store.Store = (*Store)(nil)

// Find returns matching documents. Without a sort, documents come back in
// insertion order.
func (s *Store) Find(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	where, args, err := whereClause(collection, q.Filter)
	if err != nil {
		return nil, err
	}
	orderBy, err := orderClause(q.Sort)
	if err != nil {
		return nil, err
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	query := "SELECT body FROM documents WHERE " + where + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Skip)

	return s.queryDocuments(ctx, query, args...)
}

// Count returns the number of documents matching f.
func (s *Store) Count(ctx context.Context, collection string, f store.Filter) (int64, error) {
	where, args, err := whereClause(collection, f)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", collection, err)
	}
	return n, nil
}

// Get returns one document by id.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", collection, id, err)
	}
	return decode(body)
}

// Insert stores doc, generating a UUID when "_id" is absent.
func (s *Store) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	body := doc.Clone()
	id := body.ID()
	if id == "" {
		id = uuid.NewString()
		body[store.IDField] = id
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)",
		collection, id, string(data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", store.ErrDuplicate
		}
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

// Update merges fields into the stored body inside a transaction.
func (s *Store) Update(ctx context.Context, collection, id string, fields store.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("loading %s/%s: %w", collection, id, err)
	}

	doc, err := decode(raw)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if k == store.IDField {
			continue
		}
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET body = ? WHERE collection = ? AND id = ?",
		string(data), collection, id,
	); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("updating %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

// Aggregate pushes the leading $match stages, and a $limit directly after
// them, down to SQL and evaluates the remaining stages in memory. Grouped or
// sorted pipelines therefore read every row the leading filter selects.
func (s *Store) Aggregate(ctx context.Context, collection string, p store.Pipeline) ([]store.Document, error) {
	q, rest := pushdown(p)
	docs, err := s.Find(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	return store.Apply(docs, rest)
}

// pushdown splits p into the query SQL can answer and the stages left over.
// Leading matches merge while their fields are disjoint.
func pushdown(p store.Pipeline) (store.Query, store.Pipeline) {
	q := store.Query{Filter: store.Filter{}}
	i := 0
	for ; i < len(p); i++ {
		m, ok := p[i].(store.MatchStage)
		if !ok || !mergeFilter(q.Filter, m.Filter) {
			break
		}
	}
	if i < len(p) {
		if l, ok := p[i].(store.LimitStage); ok && l.N > 0 {
			q.Limit = l.N
			i++
		}
	}
	return q, p[i:]
}

func mergeFilter(dst, src store.Filter) bool {
	for k := range src {
		if _, dup := dst[k]; dup {
			return false
		}
	}
	for k, v := range src {
		dst[k] = v
	}
	return true
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queryDocuments collects every row before returning so no cursor is held
// while the caller issues further statements.
func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]store.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var bodies []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	docs := make([]store.Document, 0, len(bodies))
	for _, b := range bodies {
		d, err := decode(b)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func decode(body string) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// isUniqueViolation checks for a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
