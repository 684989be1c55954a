package tenants

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/domain"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple name", input: "Acme", expected: "acme"},
		{name: "name with spaces", input: "Acme Corp", expected: "acme-corp"},
		{name: "name with special chars", input: "Acme & Sons, Ltd.", expected: "acme-sons-ltd"},
		{name: "leading and trailing junk", input: "  --Acme--  ", expected: "acme"},
		{name: "digits", input: "Team 42", expected: "team-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}

func TestSlugify_Truncates(t *testing.T) {
	slug := Slugify(strings.Repeat("ab ", 40))
	assert.LessOrEqual(t, len(slug), maxSlugLength)
	assert.NoError(t, ValidateSlug(slug))
}

func TestValidateSlug(t *testing.T) {
	valid := []string{"acme", "acme-corp", "a1b", strings.Repeat("a", 63)}
	for _, s := range valid {
		assert.NoError(t, ValidateSlug(s), s)
	}

	invalid := []string{"", "ab", "Acme", "acme--corp", "-acme", "acme-", "acme_corp", strings.Repeat("a", 64)}
	for _, s := range invalid {
		assert.ErrorIs(t, ValidateSlug(s), domain.ErrInvalidInput, s)
	}
}

func TestNormalizeDomain(t *testing.T) {
	d := " App.Example.COM "
	got, err := normalizeDomain(&d)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", *got)

	empty := "  "
	got, err = normalizeDomain(&empty)
	require.NoError(t, err)
	assert.Nil(t, got)

	bad := "localhost"
	_, err = normalizeDomain(&bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestValidateModules_Dedupes(t *testing.T) {
	got, err := validateModules([]string{"billing", " billing ", "reports"})
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "reports"}, got)
}

func TestNormalizeEmail(t *testing.T) {
	got, err := normalizeEmail(" Jane@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got)

	_, err = normalizeEmail("Jane <jane@example.com>")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = normalizeEmail("nope")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
