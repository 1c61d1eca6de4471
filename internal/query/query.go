// Package query normalizes raw query strings into one of two closed query
// forms before any retrieval runs. Classification is total: every input is
// either an identifier lookup or a semantic query, and downstream stages
// switch on the form rather than re-inspecting the raw string.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lightfast/retrieval-router/pkg/types"
)

// Query is the closed set of processed query forms. Only IdentifierQuery
// and SemanticQuery implement it.
type Query interface {
	isQuery()
	Raw() string
}

// Mode is the caller-requested query mode. ModeAuto lets classification
// decide from the input shape; the explicit modes force one form.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeSemantic   Mode = "semantic"
	ModeIdentifier Mode = "identifier"
)

// ParseMode validates a raw mode string. Empty input means ModeAuto.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeIdentifier:
		return ModeIdentifier, nil
	default:
		return "", fmt.Errorf("unrecognized query mode %q", raw)
	}
}

// IdentifierQuery is an exact-lookup query: an issue number, ticket code,
// or similar identifier token. It resolves through the durable store alone
// and never reaches the vector or rerank stages.
type IdentifierQuery struct {
	Identifier string
	raw        string
}

func (IdentifierQuery) isQuery()      {}
func (q IdentifierQuery) Raw() string { return q.raw }

// SemanticQuery is a free-text query with optional metadata filters and a
// detected intent that selects the graph edge allowlist.
type SemanticQuery struct {
	Terms  []string
	Filter Filter
	Intent string
	raw    string
}

func (SemanticQuery) isQuery()      {}
func (q SemanticQuery) Raw() string { return q.raw }

// Text returns the filter-stripped query text submitted to the embedder
// and reranker.
func (q SemanticQuery) Text() string { return strings.Join(q.Terms, " ") }

// Filter holds parsed metadata constraints. All constraints are
// conjunctive.
type Filter struct {
	Sources []string
	Types   []string
	Authors []string
	After   time.Time
	Before  time.Time
}

// Intent values detected from query phrasing.
const (
	IntentOwnership  = "ownership"
	IntentDependency = "dependency"
	IntentGeneral    = "general"
)

// Identifier shapes: "#123" and namespaced codes like "ENG-442".
var (
	hashIDPattern = regexp.MustCompile(`^#\d+$`)
	codeIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}-\d+$`)
)

// dateLayouts accepted by from:/after:/before: filter values.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// Parse classifies and normalizes a raw query. Malformed filter tokens are
// dropped and reported as warnings; they never fail the query. The only
// error is an effectively empty input.
//
// ModeIdentifier forces an exact lookup of the trimmed input regardless of
// its shape; ModeSemantic suppresses identifier classification entirely.
func Parse(raw string, mode Mode) (Query, []string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil, types.ErrEmptyQuery
	}

	if mode == ModeIdentifier {
		return IdentifierQuery{Identifier: trimmed, raw: raw}, nil, nil
	}
	if mode != ModeSemantic && (hashIDPattern.MatchString(trimmed) || codeIDPattern.MatchString(trimmed)) {
		return IdentifierQuery{Identifier: trimmed, raw: raw}, nil, nil
	}

	var (
		terms    []string
		filter   Filter
		warnings []string
	)
	for _, token := range strings.Fields(trimmed) {
		key, val, ok := splitFilterToken(token)
		if !ok {
			terms = append(terms, token)
			continue
		}
		switch key {
		case "source":
			filter.Sources = append(filter.Sources, strings.ToLower(val))
		case "type":
			filter.Types = append(filter.Types, strings.ToLower(val))
		case "author":
			filter.Authors = append(filter.Authors, val)
		case "from", "after":
			t, err := parseDate(val)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("ignored filter %q: unparseable date", token))
				continue
			}
			filter.After = t
		case "before":
			t, err := parseDate(val)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("ignored filter %q: unparseable date", token))
				continue
			}
			filter.Before = t
		default:
			// Unknown filter keys are treated as plain terms; a colon in
			// prose is not a filter.
			terms = append(terms, token)
		}
	}

	if len(terms) == 0 {
		return nil, warnings, types.ErrEmptyQuery
	}
	if !filter.After.IsZero() && !filter.Before.IsZero() && filter.Before.Before(filter.After) {
		warnings = append(warnings, "ignored date filters: before precedes after")
		filter.After = time.Time{}
		filter.Before = time.Time{}
	}

	return SemanticQuery{
		Terms:  terms,
		Filter: filter,
		Intent: detectIntent(terms),
		raw:    raw,
	}, warnings, nil
}

// splitFilterToken splits "key:value" tokens with a recognized shape.
func splitFilterToken(token string) (string, string, bool) {
	key, val, ok := strings.Cut(token, ":")
	if !ok || key == "" || val == "" {
		return "", "", false
	}
	return strings.ToLower(key), val, true
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// detectIntent inspects normalized terms for ownership or dependency
// phrasing. The intent only widens or narrows graph traversal; it never
// changes which adapters run.
func detectIntent(terms []string) string {
	joined := " " + strings.ToLower(strings.Join(terms, " ")) + " "
	for _, marker := range []string{" owns ", " owner ", " owned ", " responsible ", " maintains ", " maintainer "} {
		if strings.Contains(joined, marker) {
			return IntentOwnership
		}
	}
	for _, marker := range []string{" depends ", " dependency ", " dependencies ", " blocked ", " blocking ", " blocks "} {
		if strings.Contains(joined, marker) {
			return IntentDependency
		}
	}
	return IntentGeneral
}
