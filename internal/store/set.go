package store

import (
	"fmt"

	"pragrisk/internal/models"

	"gorm.io/gorm"
)

type (
	ActorStore         = Store[models.Actor, *models.Actor]
	TechnologyStore    = Store[models.Technology, *models.Technology]
	VulnerabilityStore = Store[models.Vulnerability, *models.Vulnerability]
	MitigationStore    = Store[models.Mitigation, *models.Mitigation]
	ScenarioStore      = Store[models.Scenario, *models.Scenario]
	EnvironmentStore   = Store[models.Environment, *models.Environment]
)

// Set holds the store of every entity kind, wired with the reference rules
// of the register.
type Set struct {
	Actors          *ActorStore
	Technologies    *TechnologyStore
	Vulnerabilities *VulnerabilityStore
	Mitigations     *MitigationStore
	Scenarios       *ScenarioStore
	Environments    *EnvironmentStore
}

const linkTable = "mitigation_vulnerabilities"

func NewSet(db *gorm.DB) (*Set, error) {
	var (
		set Set
		err error
	)
	set.Actors, err = New(db, Options[models.Actor, *models.Actor]{
		Restrict: []Ref{
			{Table: "scenarios", Column: "actor_id"},
			{Table: "actors", Column: "parent_id"},
		},
		SearchColumns: []string{"first_name", "last_name", "nick_name", "actor_group", "description"},
	})
	if err != nil {
		return nil, fmt.Errorf("actors: %w", err)
	}
	set.Technologies, err = New(db, Options[models.Technology, *models.Technology]{
		Restrict: []Ref{
			{Table: "scenarios", Column: "technology_id"},
			{Table: "technologies", Column: "parent_id"},
		},
		SearchColumns: []string{"name", "category", "tech_stack", "description"},
	})
	if err != nil {
		return nil, fmt.Errorf("technologies: %w", err)
	}
	set.Vulnerabilities, err = New(db, Options[models.Vulnerability, *models.Vulnerability]{
		Restrict: []Ref{
			{Table: "scenarios", Column: "vulnerability_id"},
			{Table: linkTable, Column: "vulnerability_id"},
		},
		SearchColumns: []string{"description"},
	})
	if err != nil {
		return nil, fmt.Errorf("vulnerabilities: %w", err)
	}
	set.Mitigations, err = New(db, Options[models.Mitigation, *models.Mitigation]{
		Preload:       []string{"Vulnerabilities"},
		Cascade:       []Ref{{Table: linkTable, Column: "mitigation_id"}},
		AfterWrite:    writeMitigationLinks,
		SearchColumns: []string{"control_id", "title", "description", "framework_reference", "mitigation_type", "status"},
	})
	if err != nil {
		return nil, fmt.Errorf("mitigations: %w", err)
	}
	set.Scenarios, err = New(db, Options[models.Scenario, *models.Scenario]{
		SearchColumns: []string{"title", "description"},
	})
	if err != nil {
		return nil, fmt.Errorf("scenarios: %w", err)
	}
	set.Environments, err = New(db, Options[models.Environment, *models.Environment]{
		Preload:       []string{"Actors"},
		Restrict:      []Ref{{Table: "actors", Column: "environment_id"}},
		SearchColumns: []string{"name", "description"},
	})
	if err != nil {
		return nil, fmt.Errorf("environments: %w", err)
	}
	return &set, nil
}

// writeMitigationLinks replaces the link rows of m with its current
// vulnerability set.
func writeMitigationLinks(tx *gorm.DB, m *models.Mitigation) error {
	if err := tx.Where("mitigation_id = ?", m.ID).Delete(&models.MitigationVulnerability{}).Error; err != nil {
		return err
	}
	ids := m.VulnerabilityIDs()
	if len(ids) == 0 {
		return nil
	}
	rows := make([]models.MitigationVulnerability, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.MitigationVulnerability{MitigationID: m.ID, VulnerabilityID: id})
	}
	return tx.Create(&rows).Error
}
