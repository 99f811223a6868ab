package matching

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
)

type mockExpense struct {
	NormalizedLabel string
	AmountCents     int64
	Classified      bool
	RuleID          uuid.UUID
}

// MockRuleRepository keeps rules and expenses in memory.
type MockRuleRepository struct {
	Rules         map[uuid.UUID]*Rule
	Expenses      []*mockExpense
	Organisations map[uuid.UUID]bool
	ApplyFailures map[uuid.UUID]error
	shouldFail    bool
	labelQueries  int
}

func NewMockRuleRepository() *MockRuleRepository {
	return &MockRuleRepository{
		Rules:         map[uuid.UUID]*Rule{},
		Organisations: map[uuid.UUID]bool{},
		ApplyFailures: map[uuid.UUID]error{},
	}
}

var errMockRepository = errors.New("repository error")

func (m *MockRuleRepository) Create(_ context.Context, rule *Rule) error {
	if m.shouldFail {
		return errMockRepository
	}
	for _, existing := range m.Rules {
		if existing.NormalizedValue == rule.NormalizedValue {
			return ErrRuleConflict
		}
	}
	copied := *rule
	m.Rules[rule.ID] = &copied
	return nil
}

func (m *MockRuleRepository) FindByID(_ context.Context, ruleID uuid.UUID) (*Rule, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	rule, ok := m.Rules[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	copied := *rule
	return &copied, nil
}

func (m *MockRuleRepository) sorted(filter func(Rule) bool) []Rule {
	rules := []Rule{}
	for _, rule := range m.Rules {
		if filter(*rule) {
			rules = append(rules, *rule)
		}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt.Before(rules[j].CreatedAt) })
	return rules
}

func (m *MockRuleRepository) FindAll(_ context.Context) ([]Rule, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	return m.sorted(func(Rule) bool { return true }), nil
}

func (m *MockRuleRepository) FindEnabled(_ context.Context) ([]Rule, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	return m.sorted(func(r Rule) bool { return r.Enabled }), nil
}

func (m *MockRuleRepository) Update(_ context.Context, rule *Rule) error {
	if _, ok := m.Rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	for id, existing := range m.Rules {
		if id != rule.ID && existing.NormalizedValue == rule.NormalizedValue {
			return ErrRuleConflict
		}
	}
	copied := *rule
	m.Rules[rule.ID] = &copied
	return nil
}

func (m *MockRuleRepository) SetEnabled(_ context.Context, ruleID uuid.UUID, enabled bool) error {
	rule, ok := m.Rules[ruleID]
	if !ok {
		return ErrRuleNotFound
	}
	rule.Enabled = enabled
	return nil
}

func (m *MockRuleRepository) Delete(_ context.Context, ruleID uuid.UUID) error {
	if _, ok := m.Rules[ruleID]; !ok {
		return ErrRuleNotFound
	}
	delete(m.Rules, ruleID)
	return nil
}

func (m *MockRuleRepository) OrganisationExists(_ context.Context, organisationID uuid.UUID) (bool, error) {
	return m.Organisations[organisationID], nil
}

func (m *MockRuleRepository) UnclassifiedLabels(_ context.Context, limit int) ([]UnclassifiedLabel, error) {
	if m.shouldFail {
		return nil, errMockRepository
	}
	m.labelQueries++
	byLabel := map[string]*UnclassifiedLabel{}
	for _, e := range m.Expenses {
		if e.Classified {
			continue
		}
		l, ok := byLabel[e.NormalizedLabel]
		if !ok {
			l = &UnclassifiedLabel{Label: e.NormalizedLabel, NormalizedLabel: e.NormalizedLabel}
			byLabel[e.NormalizedLabel] = l
		}
		l.TransactionCount++
		if e.AmountCents < 0 {
			l.TotalAmountCents -= e.AmountCents
		} else {
			l.TotalAmountCents += e.AmountCents
		}
	}
	labels := []UnclassifiedLabel{}
	for _, l := range byLabel {
		labels = append(labels, *l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].TransactionCount != labels[j].TransactionCount {
			return labels[i].TransactionCount > labels[j].TransactionCount
		}
		return labels[i].TotalAmountCents > labels[j].TotalAmountCents
	})
	if len(labels) > limit {
		labels = labels[:limit]
	}
	return labels, nil
}

func (m *MockRuleRepository) ApplyRule(_ context.Context, rule Rule) (int, error) {
	if err, ok := m.ApplyFailures[rule.ID]; ok {
		return 0, err
	}
	classified := 0
	for _, e := range m.Expenses {
		if !e.Classified && rule.Matches(e.NormalizedLabel) {
			e.Classified = true
			e.RuleID = rule.ID
			classified++
		}
	}
	if stored, ok := m.Rules[rule.ID]; ok {
		stored.MatchedExpensesCount += classified
	}
	return classified, nil
}
