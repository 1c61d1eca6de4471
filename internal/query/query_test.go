package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightfast/retrieval-router/pkg/types"
)

func TestParse_IdentifierClassification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"hash number", "#123", "#123"},
		{"namespaced code", "ENG-442", "ENG-442"},
		{"short prefix code", "AB-7", "AB-7"},
		{"surrounding whitespace", "  #99  ", "#99"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, warnings, err := Parse(tt.input, ModeAuto)
			require.NoError(t, err)
			assert.Empty(t, warnings)

			iq, ok := parsed.(IdentifierQuery)
			require.True(t, ok, "expected identifier query")
			assert.Equal(t, tt.want, iq.Identifier)
		})
	}
}

func TestParse_IdentifierShapedTextStaysSemantic(t *testing.T) {
	// Identifier tokens inside longer text do not trigger the bypass.
	for _, input := range []string{
		"what happened with ENG-442",
		"#123 rollout notes",
		"eng-442", // lowercase prefix is not an identifier
		"#12a",
	} {
		parsed, _, err := Parse(input, ModeAuto)
		require.NoError(t, err, input)
		_, ok := parsed.(SemanticQuery)
		assert.True(t, ok, "expected semantic query for %q", input)
	}
}

func TestParse_ModeSemanticSuppressesIdentifierShape(t *testing.T) {
	parsed, warnings, err := Parse("ENG-442", ModeSemantic)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	sq, ok := parsed.(SemanticQuery)
	require.True(t, ok, "semantic mode must never produce an identifier query")
	assert.Equal(t, []string{"ENG-442"}, sq.Terms)
}

func TestParse_ModeIdentifierForcesLookup(t *testing.T) {
	// Identifier mode takes the trimmed input verbatim, shape or not.
	for _, input := range []string{"ENG-442", "billing runbook", "deadbeef01"} {
		parsed, warnings, err := Parse("  "+input+"  ", ModeIdentifier)
		require.NoError(t, err, input)
		assert.Empty(t, warnings)

		iq, ok := parsed.(IdentifierQuery)
		require.True(t, ok, "expected identifier query for %q", input)
		assert.Equal(t, input, iq.Identifier)
	}
}

func TestParseMode(t *testing.T) {
	for raw, want := range map[string]Mode{
		"":           ModeAuto,
		"auto":       ModeAuto,
		"semantic":   ModeSemantic,
		"Identifier": ModeIdentifier,
		" AUTO ":     ModeAuto,
	} {
		got, err := ParseMode(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseMode("hybrid")
	assert.Error(t, err)
}

func TestParse_EmptyQuery(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		_, _, err := Parse(input, ModeAuto)
		assert.ErrorIs(t, err, types.ErrEmptyQuery)
	}
}

func TestParse_FilterTokens(t *testing.T) {
	parsed, warnings, err := Parse("billing outage source:github type:issue author:alice after:2026-01-01 before:2026-06-01", ModeAuto)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	sq, ok := parsed.(SemanticQuery)
	require.True(t, ok)
	assert.Equal(t, []string{"billing", "outage"}, sq.Terms)
	assert.Equal(t, "billing outage", sq.Text())
	assert.Equal(t, []string{"github"}, sq.Filter.Sources)
	assert.Equal(t, []string{"issue"}, sq.Filter.Types)
	assert.Equal(t, []string{"alice"}, sq.Filter.Authors)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), sq.Filter.After)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), sq.Filter.Before)
}

func TestParse_MalformedFilterIsWarningNotError(t *testing.T) {
	parsed, warnings, err := Parse("billing after:not-a-date", ModeAuto)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "after:not-a-date")

	sq, ok := parsed.(SemanticQuery)
	require.True(t, ok)
	assert.Equal(t, []string{"billing"}, sq.Terms)
	assert.True(t, sq.Filter.After.IsZero())
}

func TestParse_InvertedDateRangeDropsBothBounds(t *testing.T) {
	parsed, warnings, err := Parse("billing after:2026-06-01 before:2026-01-01", ModeAuto)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	sq := parsed.(SemanticQuery)
	assert.True(t, sq.Filter.After.IsZero())
	assert.True(t, sq.Filter.Before.IsZero())
}

func TestParse_UnknownFilterKeyIsPlainTerm(t *testing.T) {
	parsed, warnings, err := Parse("error code:500 in checkout", ModeAuto)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	sq := parsed.(SemanticQuery)
	assert.Contains(t, sq.Terms, "code:500")
}

func TestParse_OnlyFiltersIsEmptyQuery(t *testing.T) {
	_, _, err := Parse("source:github type:issue", ModeAuto)
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"who owns the billing service", IntentOwnership},
		{"maintainer of checkout", IntentOwnership},
		{"what blocks the release", IntentDependency},
		{"service dependencies for payments", IntentDependency},
		{"postmortem for the outage", IntentGeneral},
	}
	for _, tt := range tests {
		parsed, _, err := Parse(tt.input, ModeAuto)
		require.NoError(t, err)
		sq := parsed.(SemanticQuery)
		assert.Equal(t, tt.want, sq.Intent, tt.input)
	}
}
