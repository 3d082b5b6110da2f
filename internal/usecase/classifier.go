package usecase

import (
	"strings"

	"pickasso/internal/domain"
)

// KeywordRule maps a spoken keyword onto a command type.
type KeywordRule struct {
	Keyword string
	Type    domain.CommandType
}

// DefaultKeywordRules is the voice vocabulary in priority order.
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Keyword: "move", Type: domain.CommandMove},
		{Keyword: "grab", Type: domain.CommandGrab},
		{Keyword: "place", Type: domain.CommandPlace},
		{Keyword: "stop", Type: domain.CommandStop},
		{Keyword: "home", Type: domain.CommandHome},
	}
}

// Classifier resolves an utterance to the first rule whose keyword it contains.
type Classifier struct {
	rules []KeywordRule
}

func NewClassifier(rules []KeywordRule) Classifier {
	if len(rules) == 0 {
		rules = DefaultKeywordRules()
	}
	normalized := make([]KeywordRule, 0, len(rules))
	for _, rule := range rules {
		keyword := strings.ToLower(strings.TrimSpace(rule.Keyword))
		if keyword == "" || rule.Type == "" {
			continue
		}
		normalized = append(normalized, KeywordRule{Keyword: keyword, Type: rule.Type})
	}
	return Classifier{rules: normalized}
}

// Classify returns false when no keyword matches.
func (c Classifier) Classify(utterance string) (domain.CommandType, bool) {
	text := strings.ToLower(utterance)
	for _, rule := range c.rules {
		if strings.Contains(text, rule.Keyword) {
			return rule.Type, true
		}
	}
	return "", false
}
