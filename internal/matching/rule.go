package matching

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	appErrors "github.com/verone/backoffice/internal/errors"
)

type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"

	maxMatchValueLength = 255
)

// Rule maps a recurring bank-statement label to an organisation and a default
// accounting category.
type Rule struct {
	ID                   uuid.UUID `json:"id"`
	MatchValue           string    `json:"match_value"`
	NormalizedValue      string    `json:"-"`
	MatchType            MatchType `json:"match_type"`
	OrganisationID       uuid.UUID `json:"organisation_id"`
	DefaultCategory      string    `json:"default_category"`
	Enabled              bool      `json:"enabled"`
	MatchedExpensesCount int       `json:"matched_expenses_count"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type RuleInput struct {
	MatchValue      string    `json:"match_value"`
	MatchType       MatchType `json:"match_type"`
	OrganisationID  uuid.UUID `json:"organisation_id"`
	DefaultCategory string    `json:"default_category"`
}

// RulePatch carries the fields of an update; nil means unchanged.
type RulePatch struct {
	MatchValue      *string    `json:"match_value"`
	MatchType       *MatchType `json:"match_type"`
	OrganisationID  *uuid.UUID `json:"organisation_id"`
	DefaultCategory *string    `json:"default_category"`
}

type UnclassifiedLabel struct {
	Label            string          `json:"label"`
	NormalizedLabel  string          `json:"normalized_label"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmountCents int64           `json:"total_amount_cents"`
	SuggestedRule    *RuleSuggestion `json:"suggested_rule,omitempty"`
}

type RuleSuggestion struct {
	RuleID          uuid.UUID `json:"rule_id"`
	MatchValue      string    `json:"match_value"`
	OrganisationID  uuid.UUID `json:"organisation_id"`
	DefaultCategory string    `json:"default_category"`
	Distance        int       `json:"distance"`
}

type RuleOutcome struct {
	RuleID     uuid.UUID `json:"rule_id"`
	MatchValue string    `json:"match_value"`
	Classified int       `json:"classified"`
	Error      string    `json:"error,omitempty"`
}

type ApplyResult struct {
	RulesApplied       int           `json:"rules_applied"`
	ExpensesClassified int           `json:"expenses_classified"`
	FailedRules        int           `json:"failed_rules"`
	Outcomes           []RuleOutcome `json:"outcomes"`
}

// NormalizeLabel upper-cases a label and collapses its whitespace. Rules and
// expenses are compared on this form only.
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.Join(strings.Fields(label), " "))
}

func (t MatchType) Valid() bool {
	return t == MatchExact || t == MatchContains
}

// Matches reports whether a normalised label is caught by the rule.
func (r Rule) Matches(normalizedLabel string) bool {
	switch r.MatchType {
	case MatchContains:
		return strings.Contains(normalizedLabel, r.NormalizedValue)
	default:
		return normalizedLabel == r.NormalizedValue
	}
}

func (in *RuleInput) normalize() {
	in.MatchValue = strings.TrimSpace(in.MatchValue)
	in.DefaultCategory = strings.TrimSpace(in.DefaultCategory)
	if in.MatchType == "" {
		in.MatchType = MatchExact
	}
}

func (in RuleInput) Validate() error {
	ve := &appErrors.ValidationErrors{}
	if in.MatchValue == "" {
		ve.Add(appErrors.NewValidationError("match_value is required"))
	} else if len(in.MatchValue) > maxMatchValueLength {
		ve.Add(appErrors.NewValidationError("match_value must be at most 255 characters"))
	}
	if !in.MatchType.Valid() {
		ve.Add(appErrors.NewValidationError("match_type must be 'exact' or 'contains'"))
	}
	if in.OrganisationID == uuid.Nil {
		ve.Add(appErrors.NewValidationError("organisation_id is required"))
	}
	if in.DefaultCategory == "" {
		ve.Add(appErrors.NewValidationError("default_category is required"))
	}
	return ve.OrNil()
}

func (p RulePatch) empty() bool {
	return p.MatchValue == nil && p.MatchType == nil && p.OrganisationID == nil && p.DefaultCategory == nil
}

func (p RulePatch) applyTo(rule *Rule) RuleInput {
	in := RuleInput{
		MatchValue:      rule.MatchValue,
		MatchType:       rule.MatchType,
		OrganisationID:  rule.OrganisationID,
		DefaultCategory: rule.DefaultCategory,
	}
	if p.MatchValue != nil {
		in.MatchValue = *p.MatchValue
	}
	if p.MatchType != nil {
		in.MatchType = *p.MatchType
	}
	if p.OrganisationID != nil {
		in.OrganisationID = *p.OrganisationID
	}
	if p.DefaultCategory != nil {
		in.DefaultCategory = *p.DefaultCategory
	}
	return in
}

// sortForApplication puts exact rules before contains rules and longer values
// first, so the most specific rule claims an expense.
func sortForApplication(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.MatchType != b.MatchType {
			return a.MatchType == MatchExact
		}
		if len(a.NormalizedValue) != len(b.NormalizedValue) {
			return len(a.NormalizedValue) > len(b.NormalizedValue)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
