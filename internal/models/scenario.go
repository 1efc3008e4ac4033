package models

import "github.com/shopspring/decimal"

// Scale of probability, consequence and risk value.
const DecimalScale = 2

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type Scenario struct {
	ID              string           `gorm:"primaryKey;size:36" json:"id"`
	Title           string           `gorm:"size:255;not null;uniqueIndex" json:"title"`
	Description     string           `gorm:"size:1024" json:"description"`
	Probability     *decimal.Decimal `gorm:"type:decimal(21,2)" json:"probability"`
	Consequence     *decimal.Decimal `gorm:"type:decimal(21,2)" json:"consequence"`
	RiskValue       *decimal.Decimal `gorm:"type:decimal(21,2)" json:"riskValue"`
	ActorID         string           `gorm:"size:36;not null;index" json:"actorId"`
	Actor           *Actor           `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	TechnologyID    string           `gorm:"size:36;not null;index" json:"technologyId"`
	Technology      *Technology      `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	VulnerabilityID string           `gorm:"size:36;not null;index" json:"vulnerabilityId"`
	Vulnerability   *Vulnerability   `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Timestamps

	// set when a patch changed the inputs but kept the stored risk value
	riskCarried bool
}

// RiskValueCarried reports whether RiskValue is the stored value carried
// over by a patch that changed probability or consequence without sending
// a new risk value.
func (s *Scenario) RiskValueCarried() bool { return s.riskCarried }

func (s *Scenario) GetID() string   { return s.ID }
func (s *Scenario) SetID(id string) { s.ID = id }
func (s *Scenario) Kind() Kind      { return KindScenario }

func (s *Scenario) SearchText() string { return joinText(s.Title, s.Description) }

func (s *Scenario) UniqueKeys() map[string]any {
	return map[string]any{"title": s.Title}
}

// References lists the three required references of the scenario.
func (s *Scenario) References() []Reference {
	return []Reference{
		{Field: "actorId", Kind: KindActor, ID: s.ActorID},
		{Field: "technologyId", Kind: KindTechnology, ID: s.TechnologyID},
		{Field: "vulnerabilityId", Kind: KindVulnerability, ID: s.VulnerabilityID},
	}
}

func (s *Scenario) Validate() error {
	if err := required("title", s.Title); err != nil {
		return err
	}
	if err := maxLength("title", s.Title, 255); err != nil {
		return err
	}
	if err := maxLength("description", s.Description, maxDescription); err != nil {
		return err
	}
	for _, f := range []struct {
		name  string
		value *decimal.Decimal
	}{
		{"probability", s.Probability},
		{"consequence", s.Consequence},
		{"riskValue", s.RiskValue},
	} {
		if err := checkDecimal(f.name, f.value); err != nil {
			return err
		}
	}
	for _, ref := range s.References() {
		if err := required(ref.Field, ref.ID); err != nil {
			return err
		}
	}
	return nil
}

func checkDecimal(field string, d *decimal.Decimal) error {
	if d == nil {
		return nil
	}
	if d.IsNegative() {
		return invalid(field, "must not be negative")
	}
	if !d.Equal(d.Round(DecimalScale)) {
		return invalid(field, "has more than 2 fractional digits")
	}
	return nil
}

type ScenarioPatch struct {
	PatchBase
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Probability     *decimal.Decimal `json:"probability"`
	Consequence     *decimal.Decimal `json:"consequence"`
	RiskValue       *decimal.Decimal `json:"riskValue"`
	ActorID         *string          `json:"actorId"`
	TechnologyID    *string          `json:"technologyId"`
	VulnerabilityID *string          `json:"vulnerabilityId"`
}

func (p ScenarioPatch) Apply(s *Scenario) {
	inputs := p.Probability != nil || p.Consequence != nil
	s.riskCarried = inputs && p.RiskValue == nil && s.RiskValue != nil
	setString(&s.Title, p.Title)
	setString(&s.Description, p.Description)
	setDecimal(&s.Probability, p.Probability)
	setDecimal(&s.Consequence, p.Consequence)
	setDecimal(&s.RiskValue, p.RiskValue)
	setString(&s.ActorID, p.ActorID)
	setString(&s.TechnologyID, p.TechnologyID)
	setString(&s.VulnerabilityID, p.VulnerabilityID)
}

func setDecimal(dst **decimal.Decimal, src *decimal.Decimal) {
	if src != nil {
		d := *src
		*dst = &d
	}
}
