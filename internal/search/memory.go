package search

import (
	"context"
	"sort"

	"pragrisk/internal/models"

	"github.com/hashicorp/go-memdb"
)

const documentsTable = "documents"

type memDoc struct {
	Kind  string
	ID    string
	Freq  map[string]int
	Entry Document
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			documentsTable: {
				Name: documentsTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Kind"},
								&memdb.StringFieldIndex{Field: "ID"},
							},
						},
					},
					"kind": {
						Name:    "kind",
						Indexer: &memdb.StringFieldIndex{Field: "Kind"},
					},
				},
			},
		},
	}
}

// MemoryIndex keeps documents in a go-memdb database and ranks matches by
// term frequency.
type MemoryIndex struct {
	db *memdb.MemDB
}

func NewMemoryIndex() (*MemoryIndex, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, err
	}
	return &MemoryIndex{db: db}, nil
}

func termFrequencies(text string) map[string]int {
	freq := map[string]int{}
	for _, w := range splitWords(text) {
		freq[w]++
	}
	return freq
}

func (m *MemoryIndex) Index(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(documentsTable, "id", string(doc.Kind), doc.ID)
	if err != nil {
		return err
	}
	if cur, ok := raw.(*memDoc); ok && cur.Entry.Fingerprint == doc.Fingerprint {
		return nil
	}
	entry := &memDoc{
		Kind:  string(doc.Kind),
		ID:    doc.ID,
		Freq:  termFrequencies(doc.Text),
		Entry: doc,
	}
	if err := txn.Insert(documentsTable, entry); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryIndex) RemoveByID(ctx context.Context, kind models.Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := m.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(documentsTable, "id", string(kind), id); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, kind models.Kind, query string, offset, limit int) ([]Hit, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	terms := Terms(query)

	txn := m.db.Txn(false)
	it, err := txn.Get(documentsTable, "kind", string(kind))
	if err != nil {
		return nil, 0, err
	}
	var hits []Hit
	for raw := it.Next(); raw != nil; raw = it.Next() {
		d := raw.(*memDoc)
		score := 0
		for _, t := range terms {
			score += d.Freq[t]
		}
		if len(terms) > 0 && score == 0 {
			continue
		}
		hits = append(hits, Hit{Document: d.Entry, Score: float64(score)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return window(hits, offset, limit), len(hits), nil
}

func (m *MemoryIndex) Count(ctx context.Context, kind models.Kind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	it, err := m.db.Txn(false).Get(documentsTable, "kind", string(kind))
	if err != nil {
		return 0, err
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n, nil
}

func (m *MemoryIndex) Close() error { return nil }

func window(hits []Hit, offset, limit int) []Hit {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return []Hit{}
	}
	end := len(hits)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return hits[offset:end]
}
