package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Questions(t *testing.T) {
	c := Default()

	assert.Equal(t, "regulatory_pressure", c.DefaultQuestion())
	assert.Len(t, c.Questions(), 2)
	assert.Equal(t, "Regulatory Pressure", c.Label("regulatory_pressure"))
	assert.Equal(t, "Policy Confidence", c.Label("policy_confidence"))
}

func TestLabel_UnknownCodeVerbatim(t *testing.T) {
	assert.Equal(t, "trust_index", Default().Label("trust_index"))
}

func TestNormalizeFilters(t *testing.T) {
	got := NormalizeFilters(map[string]string{
		"industry": "tech",
		"color":    "blue",
	})

	assert.Equal(t, map[string]string{
		"industry": "tech",
		"region":   "",
		"gender":   "",
		"vote":     "",
	}, got)
}

func TestValidateView(t *testing.T) {
	c := Default()

	require.NoError(t, c.ValidateView("policy_confidence", "vote", EmptyFilters()))

	err := c.ValidateView("nope", "vote", nil)
	assert.ErrorIs(t, err, ErrUnknownQuestion)

	err = c.ValidateView("policy_confidence", "age", nil)
	assert.ErrorIs(t, err, ErrUnknownDimension)

	err = c.ValidateView("policy_confidence", "vote", map[string]string{"age": "30"})
	assert.ErrorIs(t, err, ErrUnknownFilterKey)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "questions:\n  - code: trust_index\n    label: Trust Index\n  - code: raw_code\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trust_index", c.DefaultQuestion())
	assert.Equal(t, "Trust Index", c.Label("trust_index"))
	assert.Equal(t, "raw_code", c.Label("raw_code"))
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "regulatory_pressure", c.DefaultQuestion())
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New([]Question{{Code: "a"}, {Code: "a"}})
	assert.Error(t, err)

	_, err = New(nil)
	assert.Error(t, err)
}
