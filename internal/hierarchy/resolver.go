// Package hierarchy walks the optional self-referencing parent link of
// actors and technologies. The database does not prevent cycles, so every
// walk is bounded and every parent change is checked here first.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"pragrisk/internal/models"
	"pragrisk/internal/store"
)

const DefaultMaxDepth = 16

var (
	ErrInvalidHierarchy = errors.New("invalid hierarchy")
	ErrCycleSuspected   = errors.New("cycle suspected")
)

// CycleError reports a walk that revisited an id or grew past the depth
// limit.
type CycleError struct {
	Start     string
	At        string
	Depth     int
	Revisited bool
}

func (e *CycleError) Error() string {
	if e.Revisited {
		return fmt.Sprintf("cycle suspected: parent chain of %s revisits %s", e.Start, e.At)
	}
	return fmt.Sprintf("cycle suspected: parent chain of %s is longer than %d", e.Start, e.Depth)
}

func (e *CycleError) Unwrap() error { return ErrCycleSuspected }

// Getter loads one entity by id; *store.Store satisfies it.
type Getter[P models.Hierarchical] interface {
	Get(ctx context.Context, id string) (P, error)
	Kind() models.Kind
}

// ChildLister lists the direct children of an entity. A Getter that also
// implements it gets subtree depth checks on parent changes.
type ChildLister interface {
	ChildIDs(ctx context.Context, parentID string) ([]string, error)
}

type Resolver[P models.Hierarchical] struct {
	entities Getter[P]
	maxDepth int
}

func New[P models.Hierarchical](entities Getter[P], maxDepth int) *Resolver[P] {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver[P]{entities: entities, maxDepth: maxDepth}
}

func (r *Resolver[P]) depth(maxDepth int) int {
	if maxDepth <= 0 {
		return r.maxDepth
	}
	return maxDepth
}

// ResolveParent returns the direct parent of id, or the zero P when id has
// none.
func (r *Resolver[P]) ResolveParent(ctx context.Context, id string) (P, error) {
	var zero P
	e, err := r.entities.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	ref := e.ParentRef()
	if ref == nil || *ref == "" {
		return zero, nil
	}
	parent, err := r.entities.Get(ctx, *ref)
	if err != nil {
		return zero, fmt.Errorf("parent %s of %s: %w", *ref, id, err)
	}
	return parent, nil
}

// ResolveChain yields id itself and then its ancestors, nearest first. The
// walk is lazy; it ends with a *CycleError once more than maxDepth entities
// would be yielded or an id comes round again. maxDepth <= 0 selects the
// resolver default.
func (r *Resolver[P]) ResolveChain(ctx context.Context, id string, maxDepth int) iter.Seq2[P, error] {
	return r.walk(ctx, id, r.depth(maxDepth))
}

func (r *Resolver[P]) walk(ctx context.Context, id string, limit int) iter.Seq2[P, error] {
	return func(yield func(P, error) bool) {
		var zero P
		seen := make(map[string]struct{}, limit)
		next := id
		for n := 0; ; n++ {
			if _, ok := seen[next]; ok {
				yield(zero, &CycleError{Start: id, At: next, Depth: limit, Revisited: true})
				return
			}
			if n >= limit {
				yield(zero, &CycleError{Start: id, At: next, Depth: limit})
				return
			}
			seen[next] = struct{}{}

			e, err := r.entities.Get(ctx, next)
			if err != nil {
				yield(zero, err)
				return
			}
			if !yield(e, nil) {
				return
			}
			ref := e.ParentRef()
			if ref == nil || *ref == "" {
				return
			}
			next = *ref
		}
	}
}

// Chain collects ResolveChain.
func (r *Resolver[P]) Chain(ctx context.Context, id string, maxDepth int) ([]P, error) {
	var out []P
	for e, err := range r.ResolveChain(ctx, id, maxDepth) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// CheckParent validates setting parentID as the parent of id before the
// write reaches the store. id may be empty for an entity not stored yet.
func (r *Resolver[P]) CheckParent(ctx context.Context, id string, parentID *string) error {
	if parentID == nil || *parentID == "" {
		return nil
	}
	if *parentID == id {
		return fmt.Errorf("%w: %s %s cannot be its own parent", ErrInvalidHierarchy, r.entities.Kind(), id)
	}

	// every entity below id moves with it: the deepest descendant ends up
	// height levels under id, id sits under the parent's chain
	height, err := r.height(ctx, id)
	if err != nil {
		return err
	}
	limit := r.maxDepth - 1 - height
	if limit < 1 {
		if _, err := r.entities.Get(ctx, *parentID); errors.Is(err, store.ErrNotFound) {
			return missingParent(r.entities.Kind(), *parentID)
		} else if err != nil {
			return err
		}
		return fmt.Errorf("%w: subtree of %s is %d levels deep, limit is %d", ErrInvalidHierarchy, id, height+1, r.maxDepth)
	}

	first := true
	for e, err := range r.walk(ctx, *parentID, limit) {
		if err != nil {
			var cycle *CycleError
			switch {
			case first && errors.Is(err, store.ErrNotFound):
				return missingParent(r.entities.Kind(), *parentID)
			case errors.As(err, &cycle) && !cycle.Revisited:
				return fmt.Errorf("%w: parent chain would be deeper than %d", ErrInvalidHierarchy, r.maxDepth)
			}
			return err
		}
		first = false
		if id != "" && e.GetID() == id {
			return fmt.Errorf("%w: %s is a descendant of %s", ErrInvalidHierarchy, *parentID, id)
		}
	}
	return nil
}

func missingParent(kind models.Kind, parentID string) error {
	return &models.MissingReferenceError{Missing: []models.Reference{
		{Field: "parentId", Kind: kind, ID: parentID},
	}}
}

// height counts the levels of descendants below id, stopping at maxDepth.
// It is 0 when the getter cannot list children.
func (r *Resolver[P]) height(ctx context.Context, id string) (int, error) {
	lister, ok := r.entities.(ChildLister)
	if !ok || id == "" {
		return 0, nil
	}
	level := []string{id}
	seen := map[string]struct{}{id: {}}
	h := 0
	for h < r.maxDepth {
		var next []string
		for _, parent := range level {
			children, err := lister.ChildIDs(ctx, parent)
			if err != nil {
				return 0, err
			}
			for _, c := range children {
				if _, dup := seen[c]; dup {
					continue
				}
				seen[c] = struct{}{}
				next = append(next, c)
			}
		}
		if len(next) == 0 {
			break
		}
		h++
		level = next
	}
	return h, nil
}

// Inherited returns the first value pick accepts, walking from id up
// through its ancestors.
func Inherited[P models.Hierarchical, V any](ctx context.Context, r *Resolver[P], id string, maxDepth int, pick func(P) (V, bool)) (V, bool, error) {
	var zero V
	for e, err := range r.ResolveChain(ctx, id, maxDepth) {
		if err != nil {
			return zero, false, err
		}
		if v, ok := pick(e); ok {
			return v, true, nil
		}
	}
	return zero, false, nil
}
