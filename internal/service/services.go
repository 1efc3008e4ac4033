package service

import (
	"context"
	"fmt"
	"strconv"

	"pragrisk/internal/hierarchy"
	"pragrisk/internal/models"
	"pragrisk/internal/risk"
	"pragrisk/internal/store"

	"github.com/shopspring/decimal"
)

type (
	ActorService         = Coordinator[models.Actor, *models.Actor]
	TechnologyService    = Coordinator[models.Technology, *models.Technology]
	VulnerabilityService = Coordinator[models.Vulnerability, *models.Vulnerability]
	MitigationService    = Coordinator[models.Mitigation, *models.Mitigation]
	ScenarioService      = Coordinator[models.Scenario, *models.Scenario]
	EnvironmentService   = Coordinator[models.Environment, *models.Environment]
)

type Options struct {
	MaxDepth  int
	Policy    risk.Policy
	Tolerance decimal.Decimal
}

// Services wires one coordinator per entity kind with its preparation rules.
type Services struct {
	Actors          *ActorService
	Technologies    *TechnologyService
	Vulnerabilities *VulnerabilityService
	Mitigations     *MitigationService
	Scenarios       *ScenarioService
	Environments    *EnvironmentService

	ActorTree      *hierarchy.Resolver[*models.Actor]
	TechnologyTree *hierarchy.Resolver[*models.Technology]
	Risk           *risk.Calculator

	stores *store.Set
}

func New(stores *store.Set, deps Deps, opts Options) *Services {
	s := &Services{
		stores:         stores,
		ActorTree:      hierarchy.New[*models.Actor](stores.Actors, opts.MaxDepth),
		TechnologyTree: hierarchy.New[*models.Technology](stores.Technologies, opts.MaxDepth),
	}
	s.Risk = risk.NewCalculator(risk.CheckerFunc(s.exists), opts.Policy, opts.Tolerance)

	s.Actors = NewCoordinator(stores.Actors, deps, s.prepareActor)
	s.Technologies = NewCoordinator(stores.Technologies, deps, s.prepareTechnology)
	s.Vulnerabilities = NewCoordinator(stores.Vulnerabilities, deps, nil)
	s.Mitigations = NewCoordinator(stores.Mitigations, deps, s.prepareMitigation)
	s.Scenarios = NewCoordinator(stores.Scenarios, deps, s.prepareScenario)
	s.Environments = NewCoordinator(stores.Environments, deps, nil)
	return s
}

func (s *Services) exists(ctx context.Context, kind models.Kind, id string) (bool, error) {
	switch kind {
	case models.KindActor:
		return s.stores.Actors.Exists(ctx, id)
	case models.KindTechnology:
		return s.stores.Technologies.Exists(ctx, id)
	case models.KindVulnerability:
		return s.stores.Vulnerabilities.Exists(ctx, id)
	case models.KindMitigation:
		return s.stores.Mitigations.Exists(ctx, id)
	case models.KindScenario:
		return s.stores.Scenarios.Exists(ctx, id)
	case models.KindEnvironment:
		return s.stores.Environments.Exists(ctx, id)
	}
	return false, fmt.Errorf("unknown kind %q", kind)
}

func (s *Services) prepareActor(ctx context.Context, a *models.Actor) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.EnvironmentID != nil {
		ok, err := s.stores.Environments.Exists(ctx, *a.EnvironmentID)
		if err != nil {
			return err
		}
		if !ok {
			return &models.MissingReferenceError{Missing: []models.Reference{
				{Field: "environmentId", Kind: models.KindEnvironment, ID: *a.EnvironmentID},
			}}
		}
	}
	return s.ActorTree.CheckParent(ctx, a.ID, a.ParentID)
}

func (s *Services) prepareTechnology(ctx context.Context, t *models.Technology) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return s.TechnologyTree.CheckParent(ctx, t.ID, t.ParentID)
}

func (s *Services) prepareMitigation(ctx context.Context, m *models.Mitigation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var missing []models.Reference
	for i, id := range m.VulnerabilityIDs() {
		ok, err := s.stores.Vulnerabilities.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, models.Reference{
				Field: "vulnerabilities[" + strconv.Itoa(i) + "].id",
				Kind:  models.KindVulnerability,
				ID:    id,
			})
		}
	}
	if len(missing) > 0 {
		return &models.MissingReferenceError{Missing: missing}
	}
	return nil
}

func (s *Services) prepareScenario(ctx context.Context, sc *models.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := s.Risk.ValidateReferences(ctx, sc); err != nil {
		return err
	}
	return s.Risk.Apply(sc)
}

// EffectiveTechStack returns the stack of the technology or of its nearest
// ancestor that declares one.
func (s *Services) EffectiveTechStack(ctx context.Context, id string) (models.TechStack, bool, error) {
	return hierarchy.Inherited(ctx, s.TechnologyTree, id, 0, func(t *models.Technology) (models.TechStack, bool) {
		if t.TechStack == nil {
			return "", false
		}
		return *t.TechStack, true
	})
}

// AssessRisk compares the stored risk value of a scenario with the derived
// one.
func (s *Services) AssessRisk(ctx context.Context, id string) (risk.Assessment, error) {
	sc, err := s.stores.Scenarios.Get(ctx, id)
	if err != nil {
		return risk.Assessment{}, err
	}
	return s.Risk.Assess(sc), nil
}

// Reindex rebuilds the search index of every kind from the store.
func (s *Services) Reindex(ctx context.Context) ([]ReindexResult, error) {
	runs := []func(context.Context) (ReindexResult, error){
		s.Actors.Reindex,
		s.Technologies.Reindex,
		s.Vulnerabilities.Reindex,
		s.Mitigations.Reindex,
		s.Scenarios.Reindex,
		s.Environments.Reindex,
	}
	results := make([]ReindexResult, 0, len(runs))
	for _, run := range runs {
		res, err := run(ctx)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
