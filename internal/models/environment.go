package models

type Environment struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Name        string `gorm:"size:255;not null;uniqueIndex" json:"name"`
	Description string `gorm:"size:1024" json:"description"`
	// Actors is read-only here; membership is set on the actor.
	Actors []Actor `gorm:"foreignKey:EnvironmentID;constraint:OnDelete:RESTRICT" json:"actors,omitempty"`
	Timestamps
}

func (e *Environment) GetID() string   { return e.ID }
func (e *Environment) SetID(id string) { e.ID = id }
func (e *Environment) Kind() Kind      { return KindEnvironment }

func (e *Environment) SearchText() string { return joinText(e.Name, e.Description) }

func (e *Environment) UniqueKeys() map[string]any {
	return map[string]any{"name": e.Name}
}

func (e *Environment) Validate() error {
	if err := required("name", e.Name); err != nil {
		return err
	}
	if err := maxLength("name", e.Name, 255); err != nil {
		return err
	}
	return maxLength("description", e.Description, maxDescription)
}

type EnvironmentPatch struct {
	PatchBase
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (p EnvironmentPatch) Apply(e *Environment) {
	setString(&e.Name, p.Name)
	setString(&e.Description, p.Description)
}
