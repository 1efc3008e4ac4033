package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pragrisk/internal/models"

	_ "modernc.org/sqlite" // pure go sqlite driver with FTS5
)

// SQLiteIndex stores documents in an FTS5 virtual table and ranks matches
// with bm25.
type SQLiteIndex struct {
	db *sql.DB
}

func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	if path == "" {
		path = "search.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(
		kind UNINDEXED,
		id UNINDEXED,
		body,
		payload UNINDEXED,
		fingerprint UNINDEXED
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Index(ctx context.Context, doc Document) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT fingerprint FROM documents WHERE kind = ? AND id = ?`,
		string(doc.Kind), doc.ID,
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read fingerprint: %w", err)
	case current == doc.Fingerprint:
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM documents WHERE kind = ? AND id = ?`, string(doc.Kind), doc.ID,
	); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (kind, id, body, payload, fingerprint) VALUES (?, ?, ?, ?, ?)`,
		string(doc.Kind), doc.ID, doc.Text, string(doc.Payload), doc.Fingerprint,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteIndex) RemoveByID(ctx context.Context, kind models.Kind, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE kind = ? AND id = ?`, string(kind), id)
	return err
}

// matchExpr turns terms into an FTS5 query that matches any of them.
func matchExpr(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (s *SQLiteIndex) Search(ctx context.Context, kind models.Kind, query string, offset, limit int) ([]Hit, int, error) {
	if limit <= 0 {
		limit = -1
	}
	terms := Terms(query)

	var (
		countQuery, pageQuery string
		args                  []any
	)
	if len(terms) == 0 {
		countQuery = `SELECT count(*) FROM documents WHERE kind = ?`
		pageQuery = `SELECT id, body, payload, fingerprint, 0.0 FROM documents
			WHERE kind = ? ORDER BY id LIMIT ? OFFSET ?`
		args = []any{string(kind)}
	} else {
		countQuery = `SELECT count(*) FROM documents WHERE documents MATCH ? AND kind = ?`
		pageQuery = `SELECT id, body, payload, fingerprint, bm25(documents) FROM documents
			WHERE documents MATCH ? AND kind = ? ORDER BY bm25(documents), id LIMIT ? OFFSET ?`
		args = []any{matchExpr(terms), string(kind)}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count matches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, pageQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := []Hit{}
	for rows.Next() {
		var (
			h       Hit
			payload string
			rank    float64
		)
		if err := rows.Scan(&h.ID, &h.Text, &payload, &h.Fingerprint, &rank); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		h.Kind = kind
		h.Payload = []byte(payload)
		// bm25 is lower for better matches
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}

func (s *SQLiteIndex) Count(ctx context.Context, kind models.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM documents WHERE kind = ?`, string(kind)).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) Close() error { return s.db.Close() }
