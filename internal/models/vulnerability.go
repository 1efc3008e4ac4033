package models

// Vulnerability is owned by an external catalogue; the register only keeps
// its id and description so scenarios and mitigations can point at it.
type Vulnerability struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Description string `gorm:"size:1024" json:"description"`
	Timestamps
}

func (v *Vulnerability) GetID() string   { return v.ID }
func (v *Vulnerability) SetID(id string) { v.ID = id }
func (v *Vulnerability) Kind() Kind      { return KindVulnerability }

func (v *Vulnerability) SearchText() string { return joinText(v.Description) }

func (v *Vulnerability) Validate() error {
	return maxLength("description", v.Description, maxDescription)
}

type VulnerabilityPatch struct {
	PatchBase
	Description *string `json:"description"`
}

func (p VulnerabilityPatch) Apply(v *Vulnerability) {
	setString(&v.Description, p.Description)
}
