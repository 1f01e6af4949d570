package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_V1_0ToV2_0Chains(t *testing.T) {
	doc := &Document{
		Version: V1_0,
		Name:    "legacy",
		Scope:   ScopeRepo,
		Rules:   []Rule{{ID: "r1", Action: Action{Effect: EffectAllow, ContinueOnMatch: true}}},
	}
	migrated, did, err := runMigrations(doc)
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, V2_0, migrated.Version)
	assert.Equal(t, InheritOverride, migrated.Inheritance)
	assert.False(t, migrated.Rules[0].Action.ContinueOnMatch)
}

func TestRunMigrations_AlreadyCurrentVersionNoOp(t *testing.T) {
	doc := &Document{Version: V2_0, Name: "current"}
	migrated, did, err := runMigrations(doc)
	require.NoError(t, err)
	assert.False(t, did)
	assert.Equal(t, V2_0, migrated.Version)
}

func TestRunMigrations_V1_1ToV2_0PreservesExplicitInheritance(t *testing.T) {
	doc := &Document{Version: V1_1, Name: "n", Inheritance: InheritStrict}
	migrated, did, err := runMigrations(doc)
	require.NoError(t, err)
	assert.True(t, did)
	assert.Equal(t, InheritStrict, migrated.Inheritance)
}
