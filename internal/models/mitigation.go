package models

import (
	"regexp"
	"strconv"
)

var controlIDPattern = regexp.MustCompile(`^R+\d$`)

type Mitigation struct {
	ID                 string           `gorm:"primaryKey;size:36" json:"id"`
	ControlID          string           `gorm:"size:50;not null;uniqueIndex" json:"controlId"`
	Title              string           `gorm:"size:255" json:"title"`
	Description        string           `gorm:"size:1024" json:"description"`
	FrameworkReference string           `gorm:"size:255" json:"frameworkReference"`
	Type               MitigationType   `gorm:"column:mitigation_type;type:varchar(50);not null" json:"type"`
	Status             MitigationStatus `gorm:"type:varchar(50);not null" json:"status"`
	Vulnerabilities    []Vulnerability  `gorm:"many2many:mitigation_vulnerabilities" json:"vulnerabilities"`
	Timestamps
}

// MitigationVulnerability is one row of the mitigation to vulnerability link
// table.
type MitigationVulnerability struct {
	MitigationID    string `gorm:"primaryKey;size:36"`
	VulnerabilityID string `gorm:"primaryKey;size:36;index"`
}

func (MitigationVulnerability) TableName() string { return "mitigation_vulnerabilities" }

func (m *Mitigation) GetID() string   { return m.ID }
func (m *Mitigation) SetID(id string) { m.ID = id }
func (m *Mitigation) Kind() Kind      { return KindMitigation }

func (m *Mitigation) SearchText() string {
	return joinText(m.ControlID, m.Title, m.Description, m.FrameworkReference, string(m.Type), string(m.Status))
}

func (m *Mitigation) UniqueKeys() map[string]any {
	return map[string]any{"control_id": m.ControlID}
}

// VulnerabilityIDs returns the linked vulnerability ids in order, without
// duplicates.
func (m *Mitigation) VulnerabilityIDs() []string {
	seen := make(map[string]struct{}, len(m.Vulnerabilities))
	ids := make([]string, 0, len(m.Vulnerabilities))
	for _, v := range m.Vulnerabilities {
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		ids = append(ids, v.ID)
	}
	return ids
}

func (m *Mitigation) Validate() error {
	if err := required("controlId", m.ControlID); err != nil {
		return err
	}
	if !controlIDPattern.MatchString(m.ControlID) {
		return invalid("controlId", "must match "+controlIDPattern.String())
	}
	if err := maxLength("title", m.Title, 255); err != nil {
		return err
	}
	if err := maxLength("description", m.Description, maxDescription); err != nil {
		return err
	}
	if !m.Type.IsValid() {
		return invalid("type", "unknown value "+strconv.Quote(string(m.Type)))
	}
	if !m.Status.IsValid() {
		return invalid("status", "unknown value "+strconv.Quote(string(m.Status)))
	}
	for i, v := range m.Vulnerabilities {
		if v.ID == "" {
			return invalid("vulnerabilities["+strconv.Itoa(i)+"].id", "is required")
		}
	}
	return nil
}

// MitigationPatch leaves the vulnerability links alone; they only change
// through a full replace.
type MitigationPatch struct {
	PatchBase
	ControlID          *string           `json:"controlId"`
	Title              *string           `json:"title"`
	Description        *string           `json:"description"`
	FrameworkReference *string           `json:"frameworkReference"`
	Type               *MitigationType   `json:"type"`
	Status             *MitigationStatus `json:"status"`
}

func (p MitigationPatch) Apply(m *Mitigation) {
	setString(&m.ControlID, p.ControlID)
	setString(&m.Title, p.Title)
	setString(&m.Description, p.Description)
	setString(&m.FrameworkReference, p.FrameworkReference)
	if p.Type != nil {
		m.Type = *p.Type
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
}
