package models

import "strconv"

type Technology struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Name        string       `gorm:"size:255;not null" json:"name"`
	Category    TechCategory `gorm:"type:varchar(50);not null" json:"category"`
	Description string       `gorm:"size:1024" json:"description"`
	TechStack   *TechStack   `gorm:"type:varchar(20)" json:"techStack"`
	ParentID    *string      `gorm:"size:36;index" json:"parentId"`
	Parent      *Technology  `gorm:"foreignKey:ParentID;constraint:OnDelete:RESTRICT" json:"-"`
	Timestamps
}

func (t *Technology) GetID() string      { return t.ID }
func (t *Technology) SetID(id string)    { t.ID = id }
func (t *Technology) Kind() Kind         { return KindTechnology }
func (t *Technology) ParentRef() *string { return t.ParentID }

func (t *Technology) SearchText() string {
	stack := ""
	if t.TechStack != nil {
		stack = string(*t.TechStack)
	}
	return joinText(t.Name, string(t.Category), stack, t.Description)
}

func (t *Technology) Validate() error {
	if err := required("name", t.Name); err != nil {
		return err
	}
	if !t.Category.IsValid() {
		return invalid("category", "unknown value "+strconv.Quote(string(t.Category)))
	}
	if err := maxLength("description", t.Description, maxDescription); err != nil {
		return err
	}
	if t.TechStack != nil && !t.TechStack.IsValid() {
		return invalid("techStack", "unknown value "+strconv.Quote(string(*t.TechStack)))
	}
	return optionalRef("parentId", t.ParentID)
}

type TechnologyPatch struct {
	PatchBase
	Name        *string       `json:"name"`
	Category    *TechCategory `json:"category"`
	Description *string       `json:"description"`
	TechStack   *TechStack    `json:"techStack"`
	ParentID    *string       `json:"parentId"`
}

func (p TechnologyPatch) Apply(t *Technology) {
	setString(&t.Name, p.Name)
	if p.Category != nil {
		t.Category = *p.Category
	}
	setString(&t.Description, p.Description)
	if p.TechStack != nil {
		stack := *p.TechStack
		t.TechStack = &stack
	}
	if p.ParentID != nil {
		t.ParentID = p.ParentID
	}
}
