package model

import (
	"strings"
	"time"
)

// NormalizeMerchant uppercases and collapses whitespace in merchant text so
// exact matching survives statement formatting noise.
func NormalizeMerchant(merchant string) string {
	return strings.Join(strings.Fields(strings.ToUpper(merchant)), " ")
}

// RuleProvenance indicates how a merchant rule was created.
type RuleProvenance string

const (
	// ProvenanceManual indicates the rule was entered by an operator.
	ProvenanceManual RuleProvenance = "manual"
	// ProvenanceLearned indicates the rule was learned from an accepted
	// AI or human classification.
	ProvenanceLearned RuleProvenance = "learned"
)

// MerchantRule maps a merchant pattern to an account assignment.
// Pattern is unique across the rule store; Entity is empty for
// entity-agnostic rules.
type MerchantRule struct {
	CreatedAt   time.Time
	LastUsedAt  time.Time
	Pattern     string
	AccountCode string
	AccountName string
	Category    string
	Entity      string
	Provenance  RuleProvenance
	ID          int64
	UseCount    int64
	Confidence  float64
	IsRegex     bool
}

// Classify builds the lookup-method classification this rule implies.
func (r *MerchantRule) Classify() Classification {
	return Classification{
		AccountCode: r.AccountCode,
		AccountName: r.AccountName,
		Category:    r.Category,
		Method:      MethodLookup,
		Confidence:  r.Confidence,
	}
}
