package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyCodesDecodeToCanonicalValues(t *testing.T) {
	var a Actor
	require.NoError(t, json.Unmarshal([]byte(`{"group":"KOM"}`), &a))
	assert.Equal(t, GroupInternal, a.Group)

	require.NoError(t, json.Unmarshal([]byte(`{"group":"ks"}`), &a))
	assert.Equal(t, GroupExternalAuthority, a.Group)

	var tech Technology
	require.NoError(t, json.Unmarshal([]byte(`{"category":"FEL","techStack":"NET"}`), &tech))
	assert.Equal(t, CategorySharedService, tech.Category)
	require.NotNil(t, tech.TechStack)
	assert.Equal(t, StackDotNet, *tech.TechStack)

	var m Mitigation
	require.NoError(t, json.Unmarshal([]byte(`{"type":"PREV","status":"NOT_PERFORMED"}`), &m))
	assert.Equal(t, TypePreventive, m.Type)
	assert.Equal(t, StatusNotPerformed, m.Status)

	require.NoError(t, json.Unmarshal([]byte(`{"status":"MISS"}`), &m))
	assert.Equal(t, StatusNotPerformed, m.Status)
}

func TestCanonicalValuesAreCaseInsensitive(t *testing.T) {
	assert.Equal(t, GroupSupplier, ParseActorGroup(" Supplier "))
	assert.Equal(t, CategoryApplicationSystem, ParseTechCategory("FAG"))
	assert.Equal(t, StackJava, ParseTechStack("JAVA"))
	assert.Equal(t, TypeDeterrent, ParseMitigationType("deterrent"))
	assert.Equal(t, StatusWellDefined, ParseMitigationStatus("WELL-DEFINED"))
}

func TestUnknownEnumValueIsKeptAndRejected(t *testing.T) {
	var a Actor
	require.NoError(t, json.Unmarshal([]byte(`{"firstName":"a","lastName":"b","nickName":"c","group":"pirates"}`), &a))
	assert.Equal(t, ActorGroup("pirates"), a.Group)

	err := a.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "group", verr.Field)
}

func TestEnumRejectsNonString(t *testing.T) {
	var a Actor
	assert.Error(t, json.Unmarshal([]byte(`{"group":3}`), &a))
}
