package calculator

import "sort"

// SizeCounts maps a shipping size to a package count
type SizeCounts map[ShippingSize]int

// Clone returns an independent copy
func (c SizeCounts) Clone() SizeCounts {
	out := make(SizeCounts, len(c))
	for size, n := range c {
		out[size] = n
	}
	return out
}

// Total returns the number of packages across all sizes
func (c SizeCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Merge records one rule that actually executed during consolidation
type Merge struct {
	RuleID        int64        `json:"ruleId"`
	RuleName      string       `json:"ruleName"`
	FromSize      ShippingSize `json:"fromSize"`
	ToSize        ShippingSize `json:"toSize"`
	Sets          int          `json:"sets"`
	UnitsConsumed int          `json:"unitsConsumed"`
}

// Consolidation is the outcome of applying a rule set to a size mapping
type Consolidation struct {
	Counts SizeCounts
	// AppliedRules holds the enabled rules whose threshold was met by the
	// pre-consolidation counts, in application order.
	AppliedRules []ConsolidationRule
	Merges       []Merge
}

// AggregateSizes sums cart line quantities per size
func AggregateSizes(lines []CartLine) SizeCounts {
	counts := make(SizeCounts)
	for _, line := range lines {
		counts[line.Size] += line.Quantity
	}
	return counts
}

// OrderRules returns the enabled rules in application order: largest FromSize first,
// then ascending ID, so the input order never changes the outcome.
func OrderRules(rules []ConsolidationRule) []ConsolidationRule {
	ordered := make([]ConsolidationRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].FromSize != ordered[j].FromSize {
			return ordered[i].FromSize > ordered[j].FromSize
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// Consolidate applies the rules once each, in OrderRules order. Output of one rule is
// visible to rules later in that order, but no rule is evaluated twice.
func Consolidate(counts SizeCounts, rules []ConsolidationRule) Consolidation {
	current := counts.Clone()
	ordered := OrderRules(rules)

	result := Consolidation{
		AppliedRules: []ConsolidationRule{},
		Merges:       []Merge{},
	}

	for _, rule := range ordered {
		// Reported from the original counts, even if an earlier merge consumed them.
		if rule.Quantity > 0 && counts[rule.FromSize] >= rule.Quantity {
			result.AppliedRules = append(result.AppliedRules, rule)
		}

		if rule.Quantity <= 0 {
			continue
		}
		sets := current[rule.FromSize] / rule.Quantity
		if sets <= 0 {
			continue
		}

		consumed := sets * rule.Quantity
		current[rule.FromSize] -= consumed
		current[rule.ToSize] += sets

		result.Merges = append(result.Merges, Merge{
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			FromSize:      rule.FromSize,
			ToSize:        rule.ToSize,
			Sets:          sets,
			UnitsConsumed: consumed,
		})
	}

	result.Counts = current
	return result
}

// FinalSize returns the largest size with a positive count.
// ok is false when no size has a positive count.
func FinalSize(counts SizeCounts) (size ShippingSize, ok bool) {
	for s, n := range counts {
		if n > 0 && (!ok || s > size) {
			size = s
			ok = true
		}
	}
	return size, ok
}
