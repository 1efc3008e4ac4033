package search

import (
	"context"
	"encoding/json"
	"fmt"

	"pragrisk/internal/models"
	"pragrisk/internal/store"
)

// Mirror is the typed view of an Index for one entity kind. Search results
// are decoded from the stored payloads and may be stale.
type Mirror[T any, P models.Record[T]] struct {
	index Index
	kind  models.Kind
}

func NewMirror[T any, P models.Record[T]](index Index) *Mirror[T, P] {
	var zero T
	return &Mirror[T, P]{index: index, kind: P(&zero).Kind()}
}

func (m *Mirror[T, P]) Kind() models.Kind { return m.kind }

func (m *Mirror[T, P]) Index(ctx context.Context, entity P) error {
	doc, err := NewDocument(entity)
	if err != nil {
		return err
	}
	return m.index.Index(ctx, doc)
}

func (m *Mirror[T, P]) RemoveByID(ctx context.Context, id string) error {
	return m.index.RemoveByID(ctx, m.kind, id)
}

func (m *Mirror[T, P]) Search(ctx context.Context, query string, req store.PageRequest) (store.Page[P], error) {
	req = req.Normalized()
	hits, total, err := m.index.Search(ctx, m.kind, query, req.Offset(), req.Size)
	if err != nil {
		return store.Page[P]{}, err
	}
	out := store.Page[P]{Items: make([]P, 0, len(hits)), Total: int64(total), Page: req.Page, Size: req.Size}
	for _, h := range hits {
		var v T
		if err := json.Unmarshal(h.Payload, &v); err != nil {
			return store.Page[P]{}, fmt.Errorf("decode %s %s: %w", m.kind, h.ID, err)
		}
		out.Items = append(out.Items, &v)
	}
	return out, nil
}

func (m *Mirror[T, P]) Count(ctx context.Context) (int, error) {
	return m.index.Count(ctx, m.kind)
}

// IDs lists the ids of every document of the mirror's kind.
func (m *Mirror[T, P]) IDs(ctx context.Context) ([]string, error) {
	const batch = 500
	var ids []string
	for offset := 0; ; offset += batch {
		hits, total, err := m.index.Search(ctx, m.kind, "", offset, batch)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			ids = append(ids, h.ID)
		}
		if len(hits) == 0 || offset+len(hits) >= total {
			return ids, nil
		}
	}
}
