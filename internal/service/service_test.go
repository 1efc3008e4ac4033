package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pragrisk/internal/events"
	"pragrisk/internal/hierarchy"
	"pragrisk/internal/metrics"
	"pragrisk/internal/models"
	"pragrisk/internal/risk"
	"pragrisk/internal/search"
	"pragrisk/internal/store"
	"pragrisk/internal/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errIndexDown = errors.New("index down")

// flakyIndex fails every call while down is set.
type flakyIndex struct {
	inner search.Index
	down  atomic.Bool
}

func (f *flakyIndex) Index(ctx context.Context, doc search.Document) error {
	if f.down.Load() {
		return errIndexDown
	}
	return f.inner.Index(ctx, doc)
}

func (f *flakyIndex) RemoveByID(ctx context.Context, kind models.Kind, id string) error {
	if f.down.Load() {
		return errIndexDown
	}
	return f.inner.RemoveByID(ctx, kind, id)
}

func (f *flakyIndex) Search(ctx context.Context, kind models.Kind, q string, offset, limit int) ([]search.Hit, int, error) {
	if f.down.Load() {
		return nil, 0, errIndexDown
	}
	return f.inner.Search(ctx, kind, q, offset, limit)
}

func (f *flakyIndex) Count(ctx context.Context, kind models.Kind) (int, error) {
	return f.inner.Count(ctx, kind)
}

func (f *flakyIndex) Close() error { return f.inner.Close() }

type recorder struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

func (r *recorder) Publish(_ context.Context, e events.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

type fixture struct {
	db      *gorm.DB
	svc     *Services
	index   *flakyIndex
	metrics *metrics.Metrics
	events  *recorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	set, err := store.NewSet(db)
	require.NoError(t, err)
	mem, err := search.NewMemoryIndex()
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		index:   &flakyIndex{inner: mem},
		metrics: metrics.New(nil),
		events:  &recorder{},
	}
	f.svc = New(set, Deps{
		DB:      db,
		Index:   f.index,
		Events:  f.events,
		Metrics: f.metrics,
		Log:     testutil.Logger(),
	}, opts)
	return f
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func (f *fixture) actor(t *testing.T, nick string, parent *string) *models.Actor {
	t.Helper()
	a, err := f.svc.Actors.Create(context.Background(), &models.Actor{
		FirstName: "First", LastName: "Last", NickName: nick, Group: models.GroupExternalAuthority, ParentID: parent,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) scenarioRefs(t *testing.T) (*models.Actor, *models.Technology, *models.Vulnerability) {
	t.Helper()
	ctx := context.Background()
	a := f.actor(t, "mallory", nil)
	tech, err := f.svc.Technologies.Create(ctx, &models.Technology{Name: "Payroll", Category: models.CategoryApplicationSystem})
	require.NoError(t, err)
	v, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "weak password policy"})
	require.NoError(t, err)
	return a, tech, v
}

func TestScenarioEndToEnd(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a, tech, v := f.scenarioRefs(t)

	s, err := f.svc.Scenarios.Create(ctx, &models.Scenario{
		Title:           "Credential stuffing",
		Probability:     dec("3"),
		Consequence:     dec("4"),
		ActorID:         a.ID,
		TechnologyID:    tech.ID,
		VulnerabilityID: v.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.NotNil(t, s.RiskValue)
	assert.Equal(t, "12.00", s.RiskValue.StringFixed(2))

	page, err := f.svc.Scenarios.Search(ctx, "credential", store.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, s.ID, page.Items[0].ID)

	require.NoError(t, f.svc.Scenarios.Delete(ctx, s.ID))

	page, err = f.svc.Scenarios.Search(ctx, "credential", store.PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.svc.Scenarios.Get(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assessment, err := f.svc.AssessRisk(ctx, s.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Nil(t, assessment.Derived)

	keys := make([]string, 0, len(f.events.events))
	for _, e := range f.events.events {
		keys = append(keys, e.RoutingKey())
	}
	assert.Contains(t, keys, "pragrisk.scenarios.create")
	assert.Contains(t, keys, "pragrisk.scenarios.delete")
}

func TestScenarioMissingReferencesTouchNothing(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Scenarios.Create(ctx, &models.Scenario{
		Title: "Orphan", ActorID: "a", TechnologyID: "t", VulnerabilityID: "v",
	})
	var missing *models.MissingReferenceError
	require.ErrorAs(t, err, &missing)
	assert.Len(t, missing.Missing, 3)

	page, err := f.svc.Scenarios.List(ctx, store.PageRequest{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	n, err := f.index.Count(ctx, models.KindScenario)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.events.events)
}

func TestStrictPolicyRejectsInconsistentRiskValue(t *testing.T) {
	f := newFixture(t, Options{Policy: risk.PolicyStrict})
	ctx := context.Background()
	a, tech, v := f.scenarioRefs(t)

	_, err := f.svc.Scenarios.Create(ctx, &models.Scenario{
		Title: "Mismatch", Probability: dec("2"), Consequence: dec("2"), RiskValue: dec("5"),
		ActorID: a.ID, TechnologyID: tech.ID, VulnerabilityID: v.ID,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDegradedSuccessKeepsStoreWrite(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.index.down.Store(true)

	v, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "open redirect"})
	require.Error(t, err)
	assert.True(t, IsDegraded(err))
	assert.ErrorIs(t, err, errIndexDown)
	require.NotNil(t, v)

	var mpe *MirrorPropagationError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, events.OpCreate, mpe.Op)
	assert.Equal(t, v.ID, mpe.ID)

	stored, err := f.svc.Vulnerabilities.Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "open redirect", stored.Description)

	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.MirrorFailures.WithLabelValues("vulnerabilities", "create")), 0)

	// search falls back to the store while the index is down
	page, err := f.svc.Vulnerabilities.Search(ctx, "redirect", store.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, v.ID, page.Items[0].ID)
	assert.InDelta(t, 1, promtest.ToFloat64(f.metrics.SearchFallbacks.WithLabelValues("vulnerabilities")), 0)

	require.Len(t, f.events.events, 1)
	assert.True(t, f.events.events[0].Degraded)
}

func TestStoreFailureSkipsMirror(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Environments.Create(ctx, &models.Environment{Name: "prod"})
	require.NoError(t, err)
	_, err = f.svc.Environments.Create(ctx, &models.Environment{Name: "prod"})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.False(t, IsDegraded(err))

	n, err := f.index.Count(ctx, models.KindEnvironment)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReindexRestoresMirror(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	kept, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "kept"})
	require.NoError(t, err)
	gone, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "gone"})
	require.NoError(t, err)

	f.index.down.Store(true)
	_, err = f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "missed"})
	require.True(t, IsDegraded(err))
	require.True(t, IsDegraded(f.svc.Vulnerabilities.Delete(ctx, gone.ID)))
	f.index.down.Store(false)

	res, err := f.svc.Vulnerabilities.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 1, res.Removed)
	assert.Zero(t, res.Failed)

	page, err := f.svc.Vulnerabilities.Search(ctx, "*", store.PageRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	page, err = f.svc.Vulnerabilities.Search(ctx, "kept", store.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, kept.ID, page.Items[0].ID)

	all, err := f.svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestPatchMergesPresentFields(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.actor(t, "eve", nil)

	desc := "insider"
	out, err := f.svc.Actors.Patch(ctx, a.ID, models.ActorPatch{PatchBase: models.PatchBase{ID: a.ID}, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "insider", out.Description)
	assert.Equal(t, "eve", out.NickName)
	assert.Equal(t, models.GroupExternalAuthority, out.Group)
	assert.Equal(t, a.CreatedAt.Unix(), out.CreatedAt.Unix())

	page, err := f.svc.Actors.Search(ctx, "insider", store.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	empty := ""
	_, err = f.svc.Actors.Patch(ctx, a.ID, models.ActorPatch{NickName: &empty})
	assert.ErrorIs(t, err, models.ErrValidation)
	stored, err := f.svc.Actors.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "eve", stored.NickName)

	_, err = f.svc.Actors.Patch(ctx, "missing", models.ActorPatch{Description: &desc})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplaceKeepsCreatedAt(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	env, err := f.svc.Environments.Create(ctx, &models.Environment{Name: "test", Description: "old"})
	require.NoError(t, err)

	out, err := f.svc.Environments.Replace(ctx, &models.Environment{ID: env.ID, Name: "test", Description: "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", out.Description)
	assert.Equal(t, env.CreatedAt.Unix(), out.CreatedAt.Unix())

	_, err = f.svc.Environments.Replace(ctx, &models.Environment{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHierarchyRejectedBeforeStore(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	b := f.actor(t, "b", nil)
	a := f.actor(t, "a", &b.ID)

	_, err := f.svc.Actors.Patch(ctx, b.ID, models.ActorPatch{ParentID: &a.ID})
	require.ErrorIs(t, err, hierarchy.ErrInvalidHierarchy)

	stored, err := f.svc.Actors.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ParentID)

	_, err = f.svc.Actors.Patch(ctx, b.ID, models.ActorPatch{ParentID: &b.ID})
	assert.ErrorIs(t, err, hierarchy.ErrInvalidHierarchy)

	missing := "nope"
	_, err = f.svc.Actors.Create(ctx, &models.Actor{FirstName: "x", LastName: "y", NickName: "z", Group: models.GroupSupplier, ParentID: &missing})
	assert.ErrorIs(t, err, models.ErrMissingReference)

	chain, err := f.svc.ActorTree.Chain(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

// slowActors widens the window between the cycle check and the write.
type slowActors struct {
	*store.Store[models.Actor, *models.Actor]
	delay time.Duration
}

func (s slowActors) Get(ctx context.Context, id string) (*models.Actor, error) {
	time.Sleep(s.delay)
	return s.Store.Get(ctx, id)
}

func TestCrossParentPatchesCannotBothWin(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.actor(t, "a", nil)
	b := f.actor(t, "b", nil)
	f.svc.ActorTree = hierarchy.New[*models.Actor](slowActors{Store: f.svc.stores.Actors, delay: 30 * time.Millisecond}, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, pair := range [][2]*models.Actor{{a, b}, {b, a}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child, parent := pair[0], pair[1]
			_, errs[i] = f.svc.Actors.Patch(ctx, child.ID, models.ActorPatch{
				PatchBase: models.PatchBase{ID: child.ID},
				ParentID:  &parent.ID,
			})
		}()
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, hierarchy.ErrInvalidHierarchy)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "exactly one of the two parent changes must be rejected")

	for _, id := range []string{a.ID, b.ID} {
		chain, err := f.svc.ActorTree.Chain(ctx, id, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(chain), 2)
	}
	assert.NotNil(t, f.svc.Technologies.tree)
	assert.Nil(t, f.svc.Scenarios.tree)
}

func TestReparentingDeepSubtreeRejected(t *testing.T) {
	f := newFixture(t, Options{MaxDepth: 3})
	ctx := context.Background()
	root := f.actor(t, "root", nil)
	child := f.actor(t, "child", &root.ID)
	top := f.actor(t, "top", nil)
	f.actor(t, "under-top", &top.ID)

	_, err := f.svc.Actors.Patch(ctx, top.ID, models.ActorPatch{PatchBase: models.PatchBase{ID: top.ID}, ParentID: &child.ID})
	require.ErrorIs(t, err, hierarchy.ErrInvalidHierarchy)

	_, err = f.svc.Actors.Patch(ctx, top.ID, models.ActorPatch{PatchBase: models.PatchBase{ID: top.ID}, ParentID: &root.ID})
	require.NoError(t, err)
}

func TestPatchedInputsRederiveRiskValue(t *testing.T) {
	for _, policy := range []risk.Policy{risk.PolicyFill, risk.PolicyStrict} {
		t.Run(string(policy), func(t *testing.T) {
			f := newFixture(t, Options{Policy: policy})
			ctx := context.Background()
			a, tech, v := f.scenarioRefs(t)

			s, err := f.svc.Scenarios.Create(ctx, &models.Scenario{
				Title: "Phishing", Probability: dec("3"), Consequence: dec("4"),
				ActorID: a.ID, TechnologyID: tech.ID, VulnerabilityID: v.ID,
			})
			require.NoError(t, err)
			require.Equal(t, "12.00", s.RiskValue.StringFixed(2))

			out, err := f.svc.Scenarios.Patch(ctx, s.ID, models.ScenarioPatch{
				PatchBase:   models.PatchBase{ID: s.ID},
				Probability: dec("5"),
			})
			require.NoError(t, err)
			assert.Equal(t, "20.00", out.RiskValue.StringFixed(2))

			stored, err := f.svc.Scenarios.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, "20.00", stored.RiskValue.StringFixed(2))
			assert.True(t, f.svc.Risk.Assess(stored).Consistent)
		})
	}
}

func TestActorEnvironmentReference(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ghost := "ghost"
	_, err := f.svc.Actors.Create(ctx, &models.Actor{FirstName: "x", LastName: "y", NickName: "z", Group: models.GroupInternal, EnvironmentID: &ghost})
	assert.ErrorIs(t, err, models.ErrMissingReference)

	env, err := f.svc.Environments.Create(ctx, &models.Environment{Name: "office"})
	require.NoError(t, err)
	a, err := f.svc.Actors.Create(ctx, &models.Actor{FirstName: "x", LastName: "y", NickName: "z", Group: models.GroupInternal, EnvironmentID: &env.ID})
	require.NoError(t, err)

	got, err := f.svc.Environments.Get(ctx, env.ID)
	require.NoError(t, err)
	require.Len(t, got.Actors, 1)
	assert.Equal(t, a.ID, got.Actors[0].ID)

	assert.ErrorIs(t, f.svc.Environments.Delete(ctx, env.ID), store.ErrReferenced)
}

func TestEffectiveTechStack(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	java := models.StackJava
	root, err := f.svc.Technologies.Create(ctx, &models.Technology{Name: "Platform", Category: models.CategorySharedService, TechStack: &java})
	require.NoError(t, err)
	leaf, err := f.svc.Technologies.Create(ctx, &models.Technology{Name: "Module", Category: models.CategoryComponent, ParentID: &root.ID})
	require.NoError(t, err)

	stack, ok, err := f.svc.EffectiveTechStack(ctx, leaf.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StackJava, stack)
}

func TestMitigationLinks(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	v, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "unpatched server"})
	require.NoError(t, err)

	_, err = f.svc.Mitigations.Create(ctx, &models.Mitigation{
		ControlID: "R1", Type: models.TypePreventive, Status: models.StatusAdHoc,
		Vulnerabilities: []models.Vulnerability{{ID: "ghost"}},
	})
	assert.ErrorIs(t, err, models.ErrMissingReference)

	m, err := f.svc.Mitigations.Create(ctx, &models.Mitigation{
		ControlID: "R1", Title: "Patch management", Type: models.TypePreventive, Status: models.StatusAdHoc,
		Vulnerabilities: []models.Vulnerability{{ID: v.ID}},
	})
	require.NoError(t, err)
	require.Len(t, m.Vulnerabilities, 1)
	assert.Equal(t, "unpatched server", m.Vulnerabilities[0].Description)

	// a patch leaves the links alone
	title := "Patch all the things"
	m, err = f.svc.Mitigations.Patch(ctx, m.ID, models.MitigationPatch{Title: &title})
	require.NoError(t, err)
	assert.Len(t, m.Vulnerabilities, 1)

	assert.ErrorIs(t, f.svc.Vulnerabilities.Delete(ctx, v.ID), store.ErrReferenced)

	_, err = f.svc.Mitigations.Create(ctx, &models.Mitigation{ControlID: "R1", Type: models.TypeDetective, Status: models.StatusAdHoc})
	assert.ErrorIs(t, err, store.ErrConflict)

	require.NoError(t, f.svc.Mitigations.Delete(ctx, m.ID))
	require.NoError(t, f.svc.Vulnerabilities.Delete(ctx, v.ID))
}

func TestDeleteRestrictedWhileReferenced(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a, tech, v := f.scenarioRefs(t)
	_, err := f.svc.Scenarios.Create(ctx, &models.Scenario{Title: "s", ActorID: a.ID, TechnologyID: tech.ID, VulnerabilityID: v.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Actors.Delete(ctx, a.ID), store.ErrReferenced)
	assert.ErrorIs(t, f.svc.Technologies.Delete(ctx, tech.ID), store.ErrReferenced)
	assert.ErrorIs(t, f.svc.Vulnerabilities.Delete(ctx, v.ID), store.ErrReferenced)
	assert.ErrorIs(t, f.svc.Actors.Delete(ctx, "missing"), store.ErrNotFound)

	page, err := f.svc.Actors.Search(ctx, "mallory", store.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1, "a refused delete leaves the index alone")
}

func TestAuditLogWritten(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	v, err := f.svc.Vulnerabilities.Create(ctx, &models.Vulnerability{Description: "xss"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Vulnerabilities.Delete(ctx, v.ID))

	var logs []models.AuditLog
	require.NoError(t, f.db.Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, "create", logs[0].Action)
	assert.Equal(t, "delete", logs[1].Action)
	assert.Equal(t, models.KindVulnerability, logs[1].Entity)
	assert.Equal(t, v.ID, logs[1].EntityID)
}

func TestConcurrentPatchesLeaveMirrorInStoreOrder(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.actor(t, "racer", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := fmt.Sprintf("version%d", i)
			_, err := f.svc.Actors.Patch(ctx, a.ID, models.ActorPatch{Description: &d})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.svc.Actors.Get(ctx, a.ID)
	require.NoError(t, err)
	page, err := f.svc.Actors.Search(ctx, stored.Description, store.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, stored.Description, page.Items[0].Description)
	assert.Zero(t, f.svc.Actors.locks.size())
}
