package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/verone/backoffice/internal/logger"
)

const (
	defaultLabelLimit     = 100
	maxLabelLimit         = 500
	maxSuggestionDistance = 3
	labelCacheTTL         = 5 * time.Minute
)

var (
	ErrRuleNotFound         = errors.New("matching rule not found")
	ErrRuleConflict         = errors.New("a matching rule already exists for this label")
	ErrRuleDisabled         = errors.New("matching rule is disabled")
	ErrOrganisationNotFound = errors.New("organisation not found")
	ErrEmptyPatch           = errors.New("no fields to update")
)

type Service interface {
	CreateRule(ctx context.Context, in RuleInput) (*Rule, error)
	GetRule(ctx context.Context, ruleID uuid.UUID) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	UpdateRule(ctx context.Context, ruleID uuid.UUID, patch RulePatch) (*Rule, error)
	SetRuleEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) (*Rule, error)
	DeleteRule(ctx context.Context, ruleID uuid.UUID) error
	ListUnclassifiedLabels(ctx context.Context, limit int) ([]UnclassifiedLabel, error)
	LinkLabel(ctx context.Context, in RuleInput) (*Rule, *RuleOutcome, error)
	ApplyRule(ctx context.Context, ruleID uuid.UUID) (*RuleOutcome, error)
	ApplyAllRules(ctx context.Context) (*ApplyResult, error)
	InvalidateLabels()
}

type service struct {
	repo   Repository
	labels *cache.Cache
}

func NewRuleService(repo Repository) Service {
	return &service{
		repo:   repo,
		labels: cache.New(labelCacheTTL, 2*labelCacheTTL),
	}
}

func (s *service) checkOrganisation(ctx context.Context, organisationID uuid.UUID) error {
	exists, err := s.repo.OrganisationExists(ctx, organisationID)
	if err != nil {
		return fmt.Errorf("check organisation: %w", err)
	}
	if !exists {
		return ErrOrganisationNotFound
	}
	return nil
}

func (s *service) CreateRule(ctx context.Context, in RuleInput) (*Rule, error) {
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkOrganisation(ctx, in.OrganisationID); err != nil {
		return nil, err
	}

	now := time.Now()
	rule := &Rule{
		ID:              uuid.New(),
		MatchValue:      in.MatchValue,
		NormalizedValue: NormalizeLabel(in.MatchValue),
		MatchType:       in.MatchType,
		OrganisationID:  in.OrganisationID,
		DefaultCategory: in.DefaultCategory,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}
	s.labels.Flush()

	logger.L.Info("matching rule created", "ruleID", rule.ID, "matchValue", rule.NormalizedValue, "matchType", rule.MatchType)
	return rule, nil
}

func (s *service) GetRule(ctx context.Context, ruleID uuid.UUID) (*Rule, error) {
	return s.repo.FindByID(ctx, ruleID)
}

func (s *service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.FindAll(ctx)
}

func (s *service) UpdateRule(ctx context.Context, ruleID uuid.UUID, patch RulePatch) (*Rule, error) {
	if patch.empty() {
		return nil, ErrEmptyPatch
	}
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	in := patch.applyTo(rule)
	in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if in.OrganisationID != rule.OrganisationID {
		if err := s.checkOrganisation(ctx, in.OrganisationID); err != nil {
			return nil, err
		}
	}

	rule.MatchValue = in.MatchValue
	rule.NormalizedValue = NormalizeLabel(in.MatchValue)
	rule.MatchType = in.MatchType
	rule.OrganisationID = in.OrganisationID
	rule.DefaultCategory = in.DefaultCategory
	rule.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}
	s.labels.Flush()
	return rule, nil
}

func (s *service) SetRuleEnabled(ctx context.Context, ruleID uuid.UUID, enabled bool) (*Rule, error) {
	if err := s.repo.SetEnabled(ctx, ruleID, enabled); err != nil {
		return nil, err
	}
	s.labels.Flush()
	return s.repo.FindByID(ctx, ruleID)
}

func (s *service) DeleteRule(ctx context.Context, ruleID uuid.UUID) error {
	if err := s.repo.Delete(ctx, ruleID); err != nil {
		return err
	}
	s.labels.Flush()
	logger.L.Info("matching rule deleted", "ruleID", ruleID)
	return nil
}

// ListUnclassifiedLabels returns the most frequent unclassified labels. Each
// label carries the closest existing rule when one is within a few edits.
func (s *service) ListUnclassifiedLabels(ctx context.Context, limit int) ([]UnclassifiedLabel, error) {
	if limit <= 0 {
		limit = defaultLabelLimit
	}
	if limit > maxLabelLimit {
		limit = maxLabelLimit
	}

	key := fmt.Sprintf("labels:%d", limit)
	if cached, ok := s.labels.Get(key); ok {
		return cached.([]UnclassifiedLabel), nil
	}

	labels, err := s.repo.UnclassifiedLabels(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("aggregate labels: %w", err)
	}
	rules, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	for i := range labels {
		labels[i].SuggestedRule = suggestRule(labels[i].NormalizedLabel, rules)
	}

	s.labels.Set(key, labels, cache.DefaultExpiration)
	return labels, nil
}

// InvalidateLabels drops the cached label aggregation. Call it whenever new
// unclassified expenses are written outside this service.
func (s *service) InvalidateLabels() {
	s.labels.Flush()
}

func suggestRule(normalizedLabel string, rules []Rule) *RuleSuggestion {
	var best *RuleSuggestion
	for _, rule := range rules {
		distance := levenshtein.ComputeDistance(normalizedLabel, rule.NormalizedValue)
		if distance > maxSuggestionDistance {
			continue
		}
		if best == nil || distance < best.Distance {
			best = &RuleSuggestion{
				RuleID:          rule.ID,
				MatchValue:      rule.MatchValue,
				OrganisationID:  rule.OrganisationID,
				DefaultCategory: rule.DefaultCategory,
				Distance:        distance,
			}
		}
	}
	return best
}

// LinkLabel creates a rule from an unclassified label and applies it at once.
func (s *service) LinkLabel(ctx context.Context, in RuleInput) (*Rule, *RuleOutcome, error) {
	rule, err := s.CreateRule(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	outcome := s.apply(ctx, *rule)
	if outcome.Error != "" {
		return rule, &outcome, fmt.Errorf("apply new rule: %s", outcome.Error)
	}
	return rule, &outcome, nil
}

func (s *service) ApplyRule(ctx context.Context, ruleID uuid.UUID) (*RuleOutcome, error) {
	rule, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}
	outcome := s.apply(ctx, *rule)
	if outcome.Error != "" {
		return &outcome, fmt.Errorf("apply rule %s: %s", rule.ID, outcome.Error)
	}
	return &outcome, nil
}

// ApplyAllRules runs every enabled rule, most specific first. A failing rule
// is recorded in the result and the run moves on to the next one.
func (s *service) ApplyAllRules(ctx context.Context) (*ApplyResult, error) {
	rules, err := s.repo.FindEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enabled rules: %w", err)
	}
	sortForApplication(rules)

	result := &ApplyResult{Outcomes: make([]RuleOutcome, 0, len(rules))}
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome := s.apply(ctx, rule)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.Error != "" {
			result.FailedRules++
			continue
		}
		result.RulesApplied++
		result.ExpensesClassified += outcome.Classified
	}

	logger.L.Info("matching rules applied",
		"rulesApplied", result.RulesApplied,
		"failedRules", result.FailedRules,
		"expensesClassified", result.ExpensesClassified)
	return result, nil
}

func (s *service) apply(ctx context.Context, rule Rule) RuleOutcome {
	outcome := RuleOutcome{RuleID: rule.ID, MatchValue: rule.MatchValue}
	classified, err := s.repo.ApplyRule(ctx, rule)
	if err != nil {
		logger.L.Error("failed to apply matching rule", "ruleID", rule.ID, "error", err)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Classified = classified
	if classified > 0 {
		s.labels.Flush()
	}
	return outcome
}
