// Package lookup implements the deterministic merchant-to-account index,
// the first stage of the classification cascade. The index learns from
// accepted AI and human classifications but never overwrites manual rules.
package lookup

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"github.com/arnold17091984/accounting-automation/internal/model"
	"github.com/arnold17091984/accounting-automation/internal/service"
)

// Index resolves merchant text to merchant rules.
type Index struct {
	storage        service.Storage
	learnThreshold float64

	mu       sync.Mutex
	compiled map[int64]*regexp.Regexp
}

// NewIndex creates a merchant lookup index backed by the rule store.
func NewIndex(storage service.Storage, learnThreshold float64) *Index {
	if learnThreshold <= 0 {
		learnThreshold = 0.90
	}
	return &Index{
		storage:        storage,
		learnThreshold: learnThreshold,
		compiled:       make(map[int64]*regexp.Regexp),
	}
}

// Resolve finds the best rule for a merchant within an entity scope.
// Matching order: exact entity-specific, exact entity-agnostic, regex
// entity-specific, regex entity-agnostic. Within a tier the highest
// confidence wins, ties broken by most recent use. A hit bumps the rule's
// usage counter; the increment is atomic and non-blocking, and a failure
// there never fails the lookup.
func (idx *Index) Resolve(ctx context.Context, merchant, entity string) (*model.MerchantRule, error) {
	normalized := model.NormalizeMerchant(merchant)
	if normalized == "" {
		return nil, nil
	}

	rules, err := idx.storage.GetRulesForEntity(ctx, entity)
	if err != nil {
		return nil, err
	}

	match := idx.pick(rules, normalized, entity)
	if match == nil {
		return nil, nil
	}

	if err := idx.storage.RecordRuleUse(ctx, match.ID); err != nil {
		slog.Warn("failed to record rule use", "rule_id", match.ID, "error", err)
	}
	return match, nil
}

// pick applies the four-tier matching order over rules already sorted by
// descending confidence and recency.
func (idx *Index) pick(rules []model.MerchantRule, normalized, entity string) *model.MerchantRule {
	type tierFn func(*model.MerchantRule) bool
	tiers := []tierFn{
		func(r *model.MerchantRule) bool {
			return !r.IsRegex && r.Entity == entity && model.NormalizeMerchant(r.Pattern) == normalized
		},
		func(r *model.MerchantRule) bool {
			return !r.IsRegex && r.Entity == "" && model.NormalizeMerchant(r.Pattern) == normalized
		},
		func(r *model.MerchantRule) bool {
			return r.IsRegex && r.Entity == entity && idx.regexMatches(r, normalized)
		},
		func(r *model.MerchantRule) bool {
			return r.IsRegex && r.Entity == "" && idx.regexMatches(r, normalized)
		},
	}

	for _, matches := range tiers {
		for i := range rules {
			if matches(&rules[i]) {
				return &rules[i]
			}
		}
	}
	return nil
}

func (idx *Index) regexMatches(rule *model.MerchantRule, text string) bool {
	idx.mu.Lock()
	re, ok := idx.compiled[rule.ID]
	idx.mu.Unlock()

	if !ok {
		var err error
		re, err = regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			slog.Warn("invalid rule pattern", "rule_id", rule.ID, "pattern", rule.Pattern, "error", err)
			return false
		}
		idx.mu.Lock()
		idx.compiled[rule.ID] = re
		idx.mu.Unlock()
	}

	return re.MatchString(text)
}

// Learn inserts a learned exact rule from an accepted AI or human
// classification when its confidence clears the learn threshold and no
// exact rule already covers the merchant. Reports whether a rule was
// created. Insert-if-absent semantics make concurrent learners safe and
// keep manual rules authoritative.
func (idx *Index) Learn(ctx context.Context, txn *model.Transaction, c model.Classification) (bool, error) {
	if c.Method != model.MethodAI && c.Method != model.MethodHuman {
		return false, nil
	}
	if c.Confidence < idx.learnThreshold {
		return false, nil
	}

	pattern := model.NormalizeMerchant(txn.Merchant)
	if pattern == "" {
		return false, nil
	}

	existing, err := idx.storage.FindExactRule(ctx, pattern, txn.Entity)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	rule := &model.MerchantRule{
		Pattern:     pattern,
		Entity:      txn.Entity,
		AccountCode: c.AccountCode,
		AccountName: c.AccountName,
		Category:    c.Category,
		Confidence:  c.Confidence,
		Provenance:  model.ProvenanceLearned,
	}

	inserted, err := idx.storage.InsertRuleIfAbsent(ctx, rule)
	if err != nil {
		return false, err
	}
	if inserted {
		slog.Info("learned merchant rule",
			"pattern", pattern,
			"entity", txn.Entity,
			"account", c.AccountCode,
			"confidence", c.Confidence)
	}
	return inserted, nil
}
