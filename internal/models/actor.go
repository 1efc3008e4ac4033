package models

import "strconv"

type Actor struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	FirstName     string     `gorm:"size:255;not null" json:"firstName"`
	LastName      string     `gorm:"size:255;not null" json:"lastName"`
	NickName      string     `gorm:"size:255;not null" json:"nickName"`
	Group         ActorGroup `gorm:"column:actor_group;type:varchar(50);not null" json:"group"`
	Description   string     `gorm:"size:1024" json:"description"`
	ParentID      *string    `gorm:"size:36;index" json:"parentId"`
	Parent        *Actor     `gorm:"foreignKey:ParentID;constraint:OnDelete:RESTRICT" json:"-"`
	EnvironmentID *string    `gorm:"size:36;index" json:"environmentId"`
	Timestamps
}

func (a *Actor) GetID() string      { return a.ID }
func (a *Actor) SetID(id string)    { a.ID = id }
func (a *Actor) Kind() Kind         { return KindActor }
func (a *Actor) ParentRef() *string { return a.ParentID }

func (a *Actor) SearchText() string {
	return joinText(a.FirstName, a.LastName, a.NickName, string(a.Group), a.Description)
}

func (a *Actor) Validate() error {
	if err := required("firstName", a.FirstName); err != nil {
		return err
	}
	if err := required("lastName", a.LastName); err != nil {
		return err
	}
	if err := required("nickName", a.NickName); err != nil {
		return err
	}
	if !a.Group.IsValid() {
		return invalid("group", "unknown value "+strconv.Quote(string(a.Group)))
	}
	if err := maxLength("description", a.Description, maxDescription); err != nil {
		return err
	}
	if err := optionalRef("parentId", a.ParentID); err != nil {
		return err
	}
	return optionalRef("environmentId", a.EnvironmentID)
}

// ActorPatch carries the fields of a partial actor update.
type ActorPatch struct {
	PatchBase
	FirstName     *string     `json:"firstName"`
	LastName      *string     `json:"lastName"`
	NickName      *string     `json:"nickName"`
	Group         *ActorGroup `json:"group"`
	Description   *string     `json:"description"`
	ParentID      *string     `json:"parentId"`
	EnvironmentID *string     `json:"environmentId"`
}

func (p ActorPatch) Apply(a *Actor) {
	setString(&a.FirstName, p.FirstName)
	setString(&a.LastName, p.LastName)
	setString(&a.NickName, p.NickName)
	if p.Group != nil {
		a.Group = *p.Group
	}
	setString(&a.Description, p.Description)
	if p.ParentID != nil {
		a.ParentID = p.ParentID
	}
	if p.EnvironmentID != nil {
		a.EnvironmentID = p.EnvironmentID
	}
}
