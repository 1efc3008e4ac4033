package models

import (
	"encoding/json"
	"strings"
)

type ActorGroup string
type TechCategory string
type TechStack string
type MitigationType string
type MitigationStatus string

const (
	GroupInternal          ActorGroup = "internal"
	GroupExternalAuthority ActorGroup = "external-authority"
	GroupUnauthorized      ActorGroup = "unauthorized"
	GroupSupplier          ActorGroup = "supplier"

	CategoryApplicationSystem TechCategory = "application-system"
	CategorySharedService     TechCategory = "shared-service"
	CategoryComponent         TechCategory = "component"

	StackJava   TechStack = "java"
	StackDotNet TechStack = "dotnet"
	StackPHP    TechStack = "php"

	TypePreventive MitigationType = "preventive"
	TypeDetective  MitigationType = "detective"
	TypeCorrective MitigationType = "corrective"
	TypeDeterrent  MitigationType = "deterrent"

	StatusNotPerformed             MitigationStatus = "not-performed"
	StatusAdHoc                    MitigationStatus = "ad-hoc"
	StatusPlannedAndTracked        MitigationStatus = "planned-and-tracked"
	StatusWellDefined              MitigationStatus = "well-defined"
	StatusQuantitativelyControlled MitigationStatus = "quantitatively-controlled"
	StatusContinuouslyImproved     MitigationStatus = "continuously-improved"
)

var (
	ValidActorGroups        = []ActorGroup{GroupInternal, GroupExternalAuthority, GroupUnauthorized, GroupSupplier}
	ValidTechCategories     = []TechCategory{CategoryApplicationSystem, CategorySharedService, CategoryComponent}
	ValidTechStacks         = []TechStack{StackJava, StackDotNet, StackPHP}
	ValidMitigationTypes    = []MitigationType{TypePreventive, TypeDetective, TypeCorrective, TypeDeterrent}
	ValidMitigationStatuses = []MitigationStatus{
		StatusNotPerformed,
		StatusAdHoc,
		StatusPlannedAndTracked,
		StatusWellDefined,
		StatusQuantitativelyControlled,
		StatusContinuouslyImproved,
	}
)

// Historical value sets of the register, keyed by upper-cased code or label.
// Rows and payloads written by older revisions are read through these tables.
var (
	legacyActorGroups = map[string]ActorGroup{
		"KOM":          GroupInternal,
		"KOMMUNE":      GroupInternal,
		"KS":           GroupExternalAuthority,
		"UV":           GroupUnauthorized,
		"UVEDKOMMENDE": GroupUnauthorized,
		"LEV":          GroupSupplier,
		"LEVERANDØR":   GroupSupplier,
	}
	legacyTechCategories = map[string]TechCategory{
		"FAG":            CategoryApplicationSystem,
		"FAGSYSTEM":      CategoryApplicationSystem,
		"FEL":            CategorySharedService,
		"FELLESTJENESTE": CategorySharedService,
		"KOM":            CategoryComponent,
		"KOMPONENT":      CategoryComponent,
	}
	legacyTechStacks = map[string]TechStack{
		"JAVA": StackJava,
		"NET":  StackDotNet,
		".NET": StackDotNet,
		"PHP":  StackPHP,
	}
	legacyMitigationTypes = map[string]MitigationType{
		"PREV":       TypePreventive,
		"PREVENTIVE": TypePreventive,
		"DETECT":     TypeDetective,
		"DETECTIVE":  TypeDetective,
		"CORR":       TypeCorrective,
		"CORRECTIVE": TypeCorrective,
		"DETER":      TypeDeterrent,
		"DETERRENT":  TypeDeterrent,
	}
	legacyMitigationStatuses = map[string]MitigationStatus{
		"MISS":                      StatusNotPerformed,
		"NOT_PERFORMED":             StatusNotPerformed,
		"ADHOC":                     StatusAdHoc,
		"AD_HOC":                    StatusAdHoc,
		"REPT":                      StatusPlannedAndTracked,
		"PLANNED_AND_TRACKED":       StatusPlannedAndTracked,
		"DEF":                       StatusWellDefined,
		"WELL_DEFINED":              StatusWellDefined,
		"MEAS":                      StatusQuantitativelyControlled,
		"QUANTITATIVELY_CONTROLLED": StatusQuantitativelyControlled,
		"CONT":                      StatusContinuouslyImproved,
		"CONTINUOUSLY_IMPROVED":     StatusContinuouslyImproved,
	}
)

func contains[E ~string](values []E, v E) bool {
	for i := range values {
		if values[i] == v {
			return true
		}
	}
	return false
}

// canonical returns the canonical value for raw. Unknown input is returned
// unchanged so Validate can report it.
func canonical[E ~string](raw string, values []E, legacy map[string]E) E {
	trimmed := strings.TrimSpace(raw)
	if contains(values, E(strings.ToLower(trimmed))) {
		return E(strings.ToLower(trimmed))
	}
	if v, ok := legacy[strings.ToUpper(trimmed)]; ok {
		return v
	}
	return E(raw)
}

func decodeEnum[E ~string](data []byte, dst *E, values []E, legacy map[string]E) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*dst = canonical(raw, values, legacy)
	return nil
}

func ParseActorGroup(s string) ActorGroup {
	return canonical(s, ValidActorGroups, legacyActorGroups)
}

func (g ActorGroup) IsValid() bool { return contains(ValidActorGroups, g) }

func (g *ActorGroup) UnmarshalJSON(data []byte) error {
	return decodeEnum(data, g, ValidActorGroups, legacyActorGroups)
}

func ParseTechCategory(s string) TechCategory {
	return canonical(s, ValidTechCategories, legacyTechCategories)
}

func (c TechCategory) IsValid() bool { return contains(ValidTechCategories, c) }

func (c *TechCategory) UnmarshalJSON(data []byte) error {
	return decodeEnum(data, c, ValidTechCategories, legacyTechCategories)
}

func ParseTechStack(s string) TechStack {
	return canonical(s, ValidTechStacks, legacyTechStacks)
}

func (s TechStack) IsValid() bool { return contains(ValidTechStacks, s) }

func (s *TechStack) UnmarshalJSON(data []byte) error {
	return decodeEnum(data, s, ValidTechStacks, legacyTechStacks)
}

func ParseMitigationType(s string) MitigationType {
	return canonical(s, ValidMitigationTypes, legacyMitigationTypes)
}

func (t MitigationType) IsValid() bool { return contains(ValidMitigationTypes, t) }

func (t *MitigationType) UnmarshalJSON(data []byte) error {
	return decodeEnum(data, t, ValidMitigationTypes, legacyMitigationTypes)
}

func ParseMitigationStatus(s string) MitigationStatus {
	return canonical(s, ValidMitigationStatuses, legacyMitigationStatuses)
}

func (s MitigationStatus) IsValid() bool { return contains(ValidMitigationStatuses, s) }

func (s *MitigationStatus) UnmarshalJSON(data []byte) error {
	return decodeEnum(data, s, ValidMitigationStatuses, legacyMitigationStatuses)
}
