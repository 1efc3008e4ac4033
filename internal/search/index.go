// Package search mirrors stored entities into a full-text index. The index
// is never authoritative: it may lag the store and can always be rebuilt
// from it.
package search

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"pragrisk/internal/models"

	"golang.org/x/crypto/blake2b"
)

// Document is one indexed entity, keyed by kind and id like the store row.
type Document struct {
	Kind        models.Kind
	ID          string
	Text        string
	Payload     []byte
	Fingerprint string
}

type Hit struct {
	Document
	Score float64
}

// Index is a full-text index backend.
type Index interface {
	// Index inserts or overwrites the document with the same kind and id.
	Index(ctx context.Context, doc Document) error
	// RemoveByID deletes a document; a missing document is not an error.
	RemoveByID(ctx context.Context, kind models.Kind, id string) error
	// Search returns one page of the documents of kind matching query, best
	// first, together with the number of all matches.
	Search(ctx context.Context, kind models.Kind, query string, offset, limit int) ([]Hit, int, error)
	Count(ctx context.Context, kind models.Kind) (int, error)
	Close() error
}

// NewDocument renders e into a document.
func NewDocument(e models.Entity) (Document, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s %s: %w", e.Kind(), e.GetID(), err)
	}
	doc := Document{
		Kind:    e.Kind(),
		ID:      e.GetID(),
		Text:    e.SearchText(),
		Payload: payload,
	}
	doc.Fingerprint = fingerprint(doc.Text, payload)
	return doc, nil
}

func fingerprint(text string, payload []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Terms splits a query into distinct lowercase words. An empty query and
// "*" yield no terms, which matches every document.
func Terms(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" || query == "*" {
		return nil
	}
	words := splitWords(query)
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Open returns the backend named by backend.
func Open(backend, path string) (Index, error) {
	switch backend {
	case "memory", "":
		return NewMemoryIndex()
	case "sqlite":
		return NewSQLiteIndex(path)
	}
	return nil, fmt.Errorf("unknown search backend %q", backend)
}
