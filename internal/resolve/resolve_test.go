package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func TestParseMappingPlainObject(t *testing.T) {
	mapping, err := ParseMapping(`{
		"Alice PTO": ["Alice Hart"],
		"Offsite": ["Alice Hart", "Bob Lefevre"],
		"All Hands": []
	}`)
	require.NoError(t, err)

	require.Len(t, mapping, 3)
	assert.Equal(t, []model.Target{model.EmployeeTarget("Alice Hart")}, mapping["Alice PTO"])
	assert.Equal(t, []model.Target{
		model.EmployeeTarget("Alice Hart"),
		model.EmployeeTarget("Bob Lefevre"),
	}, mapping["Offsite"])
	assert.Empty(t, mapping["All Hands"])
}

func TestParseMappingStripsCodeFences(t *testing.T) {
	mapping, err := ParseMapping("```json\n{\"Bastille Day\": [\"_HOLIDAY_FRANCE\"]}\n```")
	require.NoError(t, err)

	require.Len(t, mapping, 1)
	require.Len(t, mapping["Bastille Day"], 1)
	tgt := mapping["Bastille Day"][0]
	assert.True(t, tgt.IsScope())
	assert.Equal(t, model.ScopeFrance, tgt.Scope)
}

func TestParseMappingHolidayTokens(t *testing.T) {
	mapping, err := ParseMapping(`{
		"Independence Day": ["_HOLIDAY_US"],
		"Company Day": ["_HOLIDAY_COMPANY"]
	}`)
	require.NoError(t, err)

	require.Len(t, mapping["Independence Day"], 1)
	assert.Equal(t, model.ScopeUS, mapping["Independence Day"][0].Scope)
	require.Len(t, mapping["Company Day"], 1)
	assert.Equal(t, model.ScopeCompany, mapping["Company Day"][0].Scope)
}

func TestParseMappingMixedList(t *testing.T) {
	mapping, err := ParseMapping(`{"Paris Trip": ["Bob Lefevre", "_HOLIDAY_FRANCE"]}`)
	require.NoError(t, err)

	targets := mapping["Paris Trip"]
	require.Len(t, targets, 2)
	assert.False(t, targets[0].IsScope())
	assert.Equal(t, "Bob Lefevre", targets[0].Employee)
	assert.True(t, targets[1].IsScope())
}

func TestParseMappingNullListTolerated(t *testing.T) {
	mapping, err := ParseMapping(`{"Mystery": null}`)
	require.NoError(t, err)

	targets, ok := mapping["Mystery"]
	require.True(t, ok)
	assert.Empty(t, targets)
}

func TestParseMappingRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":           "",
		"prose":           "Sure! Here's the mapping you asked for.",
		"truncated":       `{"Alice PTO": ["Alice`,
		"scalar values":   `{"Alice PTO": "Alice Hart"}`,
		"nested values":   `{"Alice PTO": [["Alice Hart"]]}`,
		"top level array": `[{"Alice PTO": ["Alice Hart"]}]`,
		"only fences":     "```json\n```",
	}
	for name, raw := range cases {
		_, err := ParseMapping(raw)
		assert.Error(t, err, name)
	}
}

func TestUserPayloadEmbedsBothLists(t *testing.T) {
	got := userPayload([]string{"Alice PTO"}, []string{"Alice Hart", "Bob Lefevre"})
	assert.Contains(t, got, `["Alice PTO"]`)
	assert.Contains(t, got, `["Alice Hart","Bob Lefevre"]`)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.model)

	c, err = NewClient(Config{APIKey: "sk-test", Model: "gpt-4.1", BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", c.model)
}
