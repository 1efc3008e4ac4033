package models

import "time"

// Kind names an entity kind. It doubles as the REST path segment and the
// search index namespace.
type Kind string

const (
	KindActor         Kind = "actors"
	KindTechnology    Kind = "technologies"
	KindVulnerability Kind = "vulnerabilities"
	KindMitigation    Kind = "mitigations"
	KindScenario      Kind = "scenarios"
	KindEnvironment   Kind = "environments"
)

// Entity is implemented by every stored entity.
type Entity interface {
	GetID() string
	SetID(id string)
	Kind() Kind
	// SearchText returns the text mirrored into the search index.
	SearchText() string
	Validate() error
}

// Record constrains a type parameter to a pointer to an entity struct.
type Record[T any] interface {
	*T
	Entity
}

// Hierarchical entities carry an optional parent of the same kind.
type Hierarchical interface {
	Entity
	ParentRef() *string
}

// Patch is a partial update: Apply copies only the fields that were present.
type Patch[T any] interface {
	TargetID() string
	Apply(*T)
}

// Timestamps are managed by the store.
type Timestamps struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResetTimestamps drops client supplied values so the store sets both.
func (t *Timestamps) ResetTimestamps() { *t = Timestamps{} }

// SameEntity reports identity equality: both ids are set and equal.
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return false
	}
	return a.GetID() != "" && a.GetID() == b.GetID()
}

// PatchBase carries the id a patch body targets.
type PatchBase struct {
	ID string `json:"id"`
}

func (p PatchBase) TargetID() string { return p.ID }

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
