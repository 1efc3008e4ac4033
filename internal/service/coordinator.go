package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"pragrisk/internal/database"
	"pragrisk/internal/events"
	"pragrisk/internal/metrics"
	"pragrisk/internal/models"
	"pragrisk/internal/search"
	"pragrisk/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// PrepareFunc validates an entity and fills derived fields before it is
// written. A failure aborts the mutation before the store is touched.
type PrepareFunc[P any] func(ctx context.Context, entity P) error

// Deps are shared by every coordinator.
type Deps struct {
	DB      *gorm.DB
	Index   search.Index
	Events  events.Publisher
	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Coordinator applies mutations to the store first and then propagates them
// to the search index. The store is authoritative: an index failure is
// reported as a *MirrorPropagationError next to the stored result and the
// store write stays.
type Coordinator[T any, P models.Record[T]] struct {
	store   *store.Store[T, P]
	mirror  *search.Mirror[T, P]
	prepare PrepareFunc[P]
	locks   *keyedMutex
	// tree serializes writes of hierarchical kinds so two parent changes
	// cannot each pass the cycle check against the other's old state
	tree    *sync.Mutex
	db      *gorm.DB
	events  events.Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
	kind    models.Kind
}

func NewCoordinator[T any, P models.Record[T]](st *store.Store[T, P], deps Deps, prepare PrepareFunc[P]) *Coordinator[T, P] {
	if prepare == nil {
		prepare = func(_ context.Context, e P) error { return e.Validate() }
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	var tree *sync.Mutex
	if _, ok := any(P(new(T))).(models.Hierarchical); ok {
		tree = &sync.Mutex{}
	}
	return &Coordinator[T, P]{
		tree:    tree,
		store:   st,
		mirror:  search.NewMirror[T, P](deps.Index),
		prepare: prepare,
		locks:   newKeyedMutex(),
		db:      deps.DB,
		events:  deps.Events,
		metrics: deps.Metrics,
		log:     deps.Log.With().Str("kind", string(st.Kind())).Logger(),
		kind:    st.Kind(),
	}
}

func (c *Coordinator[T, P]) Kind() models.Kind { return c.kind }

// lockWrite takes the per-id lock, after the kind-wide tree lock for
// hierarchical kinds.
func (c *Coordinator[T, P]) lockWrite(id string) func() {
	if c.tree == nil {
		return c.locks.Lock(id)
	}
	c.tree.Lock()
	unlock := c.locks.Lock(id)
	return func() {
		unlock()
		c.tree.Unlock()
	}
}

func (c *Coordinator[T, P]) Create(ctx context.Context, entity P) (P, error) {
	if entity.GetID() == "" {
		entity.SetID(uuid.NewString())
	}
	unlock := c.lockWrite(entity.GetID())
	defer unlock()

	if err := c.prepare(ctx, entity); err != nil {
		return nil, err
	}
	out, err := c.store.Create(ctx, entity)
	if err != nil {
		return nil, err
	}
	return out, c.propagate(ctx, events.OpCreate, out.GetID(), out)
}

func (c *Coordinator[T, P]) Replace(ctx context.Context, entity P) (P, error) {
	unlock := c.lockWrite(entity.GetID())
	defer unlock()

	if err := c.prepare(ctx, entity); err != nil {
		return nil, err
	}
	out, err := c.store.Replace(ctx, entity)
	if err != nil {
		return nil, err
	}
	return out, c.propagate(ctx, events.OpReplace, out.GetID(), out)
}

// Patch merges the present fields of patch into the stored entity. The merge
// is prepared outside the write transaction; the per-id lock keeps it from
// going stale.
func (c *Coordinator[T, P]) Patch(ctx context.Context, id string, patch models.Patch[T]) (P, error) {
	unlock := c.lockWrite(id)
	defer unlock()

	cur, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := *cur
	patch.Apply(&merged)
	P(&merged).SetID(id)
	if err := c.prepare(ctx, &merged); err != nil {
		return nil, err
	}
	out, err := c.store.Patch(ctx, id, func(row P) error {
		*row = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, c.propagate(ctx, events.OpPatch, id, out)
}

func (c *Coordinator[T, P]) Delete(ctx context.Context, id string) error {
	unlock := c.locks.Lock(id)
	defer unlock()

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	return c.propagate(ctx, events.OpDelete, id, nil)
}

func (c *Coordinator[T, P]) Get(ctx context.Context, id string) (P, error) {
	return c.store.Get(ctx, id)
}

func (c *Coordinator[T, P]) List(ctx context.Context, req store.PageRequest) (store.Page[P], error) {
	return c.store.List(ctx, req)
}

// Search asks the index and falls back to a substring match in the store
// when the index fails.
func (c *Coordinator[T, P]) Search(ctx context.Context, query string, req store.PageRequest) (store.Page[P], error) {
	page, err := c.mirror.Search(ctx, query, req)
	if err == nil {
		return page, nil
	}
	c.metrics.SearchFallbacks.WithLabelValues(string(c.kind)).Inc()
	c.log.Warn().Err(err).Str("query", query).Msg("search index unavailable, falling back to store")
	return c.store.Match(ctx, search.Terms(query), req)
}

// propagate runs the steps that follow a successful store mutation: audit,
// index, event. Only the index step can fail, and only as a degraded
// success.
func (c *Coordinator[T, P]) propagate(ctx context.Context, op events.Op, id string, entity P) error {
	c.metrics.Mutations.WithLabelValues(string(c.kind), string(op)).Inc()
	var written models.Entity
	if entity != nil {
		written = entity
	}
	database.CreateAuditLog(ctx, c.db, c.kind, id, string(op), auditDetails(op, written))

	start := time.Now()
	var err error
	if op == events.OpDelete {
		err = c.mirror.RemoveByID(ctx, id)
	} else {
		err = c.mirror.Index(ctx, entity)
	}
	c.metrics.MirrorLatency.WithLabelValues(string(c.kind)).Observe(time.Since(start).Seconds())

	var degraded error
	if err != nil {
		degraded = &MirrorPropagationError{Kind: c.kind, ID: id, Op: op, Err: err}
		c.metrics.MirrorFailures.WithLabelValues(string(c.kind), string(op)).Inc()
		c.log.Warn().Err(err).Str("id", id).Str("op", string(op)).Msg("search index propagation failed, store write kept")
	}

	c.publish(ctx, op, id, entity, degraded != nil)
	return degraded
}

func (c *Coordinator[T, P]) publish(ctx context.Context, op events.Op, id string, entity P, degraded bool) {
	ev := events.ChangeEvent{
		Kind:       c.kind,
		ID:         id,
		Op:         op,
		Degraded:   degraded,
		OccurredAt: time.Now().UTC(),
	}
	if entity != nil {
		if raw, err := json.Marshal(entity); err == nil {
			ev.Entity = raw
		}
	}
	if err := c.events.Publish(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("id", id).Str("routing_key", ev.RoutingKey()).Msg("failed to publish change event")
	}
}

func auditDetails(op events.Op, entity models.Entity) string {
	if entity == nil {
		return string(op)
	}
	text := entity.SearchText()
	if utf8.RuneCountInString(text) > 200 {
		text = string([]rune(text)[:200]) + "..."
	}
	return fmt.Sprintf("%s: %s", op, text)
}

// ReindexResult counts the documents written, failed and removed by one
// reindex run.
type ReindexResult struct {
	Kind    models.Kind `json:"kind"`
	Indexed int         `json:"indexed"`
	Failed  int         `json:"failed"`
	Removed int         `json:"removed"`
}

// Reindex writes every stored entity into the index and drops documents
// whose row no longer exists.
func (c *Coordinator[T, P]) Reindex(ctx context.Context) (ReindexResult, error) {
	res := ReindexResult{Kind: c.kind}
	err := c.store.Each(ctx, 200, func(e P) error {
		if err := c.mirror.Index(ctx, e); err != nil {
			res.Failed++
			c.log.Warn().Err(err).Str("id", e.GetID()).Msg("reindex failed for entity")
			return nil
		}
		res.Indexed++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("reindex %s: %w", c.kind, err)
	}
	c.metrics.Reindexed.WithLabelValues(string(c.kind)).Add(float64(res.Indexed))

	ids, err := c.mirror.IDs(ctx)
	if err != nil {
		return res, fmt.Errorf("reindex %s: list documents: %w", c.kind, err)
	}
	for _, id := range ids {
		found, err := c.store.Exists(ctx, id)
		if err != nil {
			return res, err
		}
		if found {
			continue
		}
		if err := c.mirror.RemoveByID(ctx, id); err != nil {
			res.Failed++
			continue
		}
		res.Removed++
	}
	return res, nil
}
