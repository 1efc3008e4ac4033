package store

import (
	"context"
	"fmt"
	"strings"

	"pragrisk/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Ref names a column in another table that points at this store's ids.
type Ref struct {
	Table  string
	Column string
}

type Options[T any, P models.Record[T]] struct {
	// Preload lists associations loaded with every read.
	Preload []string
	// Restrict refuses a delete while any of these columns reference the row.
	Restrict []Ref
	// Cascade rows are removed together with the row.
	Cascade []Ref
	// AfterWrite runs inside the write transaction after the row is saved.
	AfterWrite func(tx *gorm.DB, entity P) error
	// SearchColumns are matched by Match.
	SearchColumns []string
}

// uniqueKeyed entities name the columns that must be unique across rows.
type uniqueKeyed interface {
	UniqueKeys() map[string]any
}

type timestamped interface {
	ResetTimestamps()
}

// Store is the system of record for one entity kind.
type Store[T any, P models.Record[T]] struct {
	db     *gorm.DB
	opts   Options[T, P]
	schema *schema.Schema
	kind   models.Kind
}

func New[T any, P models.Record[T]](db *gorm.DB, opts Options[T, P]) (*Store[T, P], error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	var zero T
	return &Store[T, P]{
		db:     db,
		opts:   opts,
		schema: stmt.Schema,
		kind:   P(&zero).Kind(),
	}, nil
}

func (s *Store[T, P]) Kind() models.Kind { return s.kind }

func (s *Store[T, P]) withPreload(tx *gorm.DB) *gorm.DB {
	for _, assoc := range s.opts.Preload {
		tx = tx.Preload(assoc)
	}
	return tx
}

func (s *Store[T, P]) load(tx *gorm.DB, id string) (P, error) {
	var v T
	if err := s.withPreload(tx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store[T, P]) exists(tx *gorm.DB, id string) (bool, error) {
	var n int64
	if err := tx.Model(new(T)).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store[T, P]) checkUnique(tx *gorm.DB, entity P) error {
	keyed, ok := any(entity).(uniqueKeyed)
	if !ok {
		return nil
	}
	for column, value := range keyed.UniqueKeys() {
		if value == "" || value == nil {
			continue
		}
		var n int64
		err := tx.Model(new(T)).
			Where(column+" = ?", value).
			Where("id <> ?", entity.GetID()).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s with %s %v already exists", ErrConflict, s.kind, column, value)
		}
	}
	return nil
}

func (s *Store[T, P]) save(tx *gorm.DB, entity P, create bool) error {
	var err error
	if create {
		err = tx.Omit(clause.Associations).Create(entity).Error
	} else {
		err = tx.Omit(clause.Associations, "created_at").Save(entity).Error
	}
	if err != nil {
		return translate(err)
	}
	if s.opts.AfterWrite != nil {
		if err := s.opts.AfterWrite(tx, entity); err != nil {
			return translate(err)
		}
	}
	return nil
}

// Create inserts entity and returns the stored row. An empty id is replaced
// by a fresh UUID; a supplied id that already exists is a conflict.
func (s *Store[T, P]) Create(ctx context.Context, entity P) (P, error) {
	if entity.GetID() == "" {
		entity.SetID(uuid.NewString())
	}
	if ts, ok := any(entity).(timestamped); ok {
		ts.ResetTimestamps()
	}
	var out P
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.exists(tx, entity.GetID())
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s %q already exists", ErrConflict, s.kind, entity.GetID())
		}
		if err := s.checkUnique(tx, entity); err != nil {
			return err
		}
		if err := s.save(tx, entity, true); err != nil {
			return err
		}
		out, err = s.load(tx, entity.GetID())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T, P]) Get(ctx context.Context, id string) (P, error) {
	return s.load(s.db.WithContext(ctx), id)
}

func (s *Store[T, P]) Exists(ctx context.Context, id string) (bool, error) {
	return s.exists(s.db.WithContext(ctx), id)
}

// ChildIDs returns the ids of the rows whose parent_id is parentID.
func (s *Store[T, P]) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	if _, ok := s.column("parent_id"); !ok {
		return nil, fmt.Errorf("%s have no parent", s.kind)
	}
	var ids []string
	err := s.db.WithContext(ctx).Model(new(T)).Where("parent_id = ?", parentID).Order("id").Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store[T, P]) List(ctx context.Context, req PageRequest) (Page[P], error) {
	req = req.Normalized()
	order, err := s.orderBy(req.Sort)
	if err != nil {
		return Page[P]{}, err
	}
	return s.page(s.db.WithContext(ctx), req, order, nil)
}

// Replace overwrites every column of an existing row except created_at.
func (s *Store[T, P]) Replace(ctx context.Context, entity P) (P, error) {
	var out P
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.exists(tx, entity.GetID())
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if err := s.checkUnique(tx, entity); err != nil {
			return err
		}
		if err := s.save(tx, entity, false); err != nil {
			return err
		}
		out, err = s.load(tx, entity.GetID())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Patch loads the row, lets apply modify it and writes it back in the same
// transaction.
func (s *Store[T, P]) Patch(ctx context.Context, id string, apply func(P) error) (P, error) {
	var out P
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := s.load(tx, id)
		if err != nil {
			return err
		}
		if err := apply(cur); err != nil {
			return err
		}
		cur.SetID(id)
		if err := s.checkUnique(tx, cur); err != nil {
			return err
		}
		if err := s.save(tx, cur, false); err != nil {
			return err
		}
		out, err = s.load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store[T, P]) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.exists(tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		for _, ref := range s.opts.Restrict {
			var n int64
			if err := tx.Table(ref.Table).Where(ref.Column+" = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: %s %q is used by %d row(s) of %s", ErrReferenced, s.kind, id, n, ref.Table)
			}
		}
		for _, ref := range s.opts.Cascade {
			if err := tx.Exec("DELETE FROM "+ref.Table+" WHERE "+ref.Column+" = ?", id).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(new(T))
		if res.Error != nil {
			if isForeignKey(res.Error) {
				return fmt.Errorf("%w: %v", ErrReferenced, res.Error)
			}
			return res.Error
		}
		return nil
	})
}

// Each visits every row in primary key order, batch rows at a time.
func (s *Store[T, P]) Each(ctx context.Context, batch int, fn func(P) error) error {
	if batch <= 0 {
		batch = 100
	}
	var rows []T
	res := s.withPreload(s.db.WithContext(ctx)).FindInBatches(&rows, batch, func(_ *gorm.DB, _ int) error {
		for i := range rows {
			if err := fn(&rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}

// Match is a case insensitive substring search over the configured text
// columns. A row matches when any column contains any term.
func (s *Store[T, P]) Match(ctx context.Context, terms []string, req PageRequest) (Page[P], error) {
	req = req.Normalized()
	order, err := s.orderBy(nil)
	if err != nil {
		return Page[P]{}, err
	}
	tx := s.db.WithContext(ctx)
	if len(terms) == 0 || len(s.opts.SearchColumns) == 0 {
		return s.page(tx, req, order, nil)
	}
	var (
		conds []string
		args  []any
	)
	for _, col := range s.opts.SearchColumns {
		for _, term := range terms {
			conds = append(conds, "LOWER("+col+`) LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(strings.ToLower(term))+"%")
		}
	}
	where := strings.Join(conds, " OR ")
	return s.page(tx, req, order, func(q *gorm.DB) *gorm.DB {
		return q.Where(where, args...)
	})
}

// page runs the count and the page query as two separate statements on tx,
// which must be a fresh session.
func (s *Store[T, P]) page(tx *gorm.DB, req PageRequest, order []clause.OrderByColumn, filter func(*gorm.DB) *gorm.DB) (Page[P], error) {
	if filter == nil {
		filter = func(q *gorm.DB) *gorm.DB { return q }
	}
	out := Page[P]{Page: req.Page, Size: req.Size}
	if err := tx.Model(new(T)).Scopes(filter).Count(&out.Total).Error; err != nil {
		return out, err
	}
	var rows []T
	q := s.withPreload(tx.Scopes(filter)).Offset(req.Offset()).Limit(req.Size)
	q = q.Order(clause.OrderBy{Columns: order})
	if err := q.Find(&rows).Error; err != nil {
		return out, err
	}
	out.Items = make([]P, 0, len(rows))
	for i := range rows {
		out.Items = append(out.Items, &rows[i])
	}
	return out, nil
}

// orderBy resolves sort fields against the schema. Fields may be given by
// Go name, JSON-style name or column name. The id column is always the final
// tie breaker.
func (s *Store[T, P]) orderBy(sort []SortOrder) ([]clause.OrderByColumn, error) {
	if len(sort) == 0 {
		sort = []SortOrder{{Field: "created_at"}}
	}
	cols := make([]clause.OrderByColumn, 0, len(sort)+1)
	hasID := false
	for _, o := range sort {
		column, ok := s.column(o.Field)
		if !ok {
			return nil, &models.ValidationError{Field: "sort", Reason: "unknown field " + o.Field}
		}
		hasID = hasID || column == "id"
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: column}, Desc: o.Desc})
	}
	if !hasID {
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: "id"}})
	}
	return cols, nil
}

func (s *Store[T, P]) column(name string) (string, bool) {
	for _, f := range s.schema.Fields {
		if f.DBName == "" {
			continue
		}
		if f.DBName == name || strings.EqualFold(f.Name, name) {
			return f.DBName, true
		}
	}
	return "", false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
