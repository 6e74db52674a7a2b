package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rule(id int64, from ShippingSize, qty int, to ShippingSize) ConsolidationRule {
	return ConsolidationRule{ID: id, Name: "rule", FromSize: from, Quantity: qty, ToSize: to, Enabled: true}
}

func TestAggregateSizes(t *testing.T) {
	counts := AggregateSizes([]CartLine{
		{Size: Size60, Quantity: 2},
		{Size: Size100, Quantity: 1},
		{Size: Size60, Quantity: 3},
	})

	assert.Equal(t, SizeCounts{Size60: 5, Size100: 1}, counts)
	assert.Empty(t, AggregateSizes(nil))
}

func TestConsolidate_SingleMerge(t *testing.T) {
	original := SizeCounts{Size60: 2}
	c := Consolidate(original, []ConsolidationRule{rule(1, Size60, 2, Size80)})

	assert.Equal(t, SizeCounts{Size60: 0, Size80: 1}, c.Counts)
	require.Len(t, c.Merges, 1)
	assert.Equal(t, 1, c.Merges[0].Sets)
	assert.Equal(t, 2, c.Merges[0].UnitsConsumed)

	size, ok := FinalSize(c.Counts)
	require.True(t, ok)
	assert.Equal(t, Size80, size)
}

func TestConsolidate_Remainder(t *testing.T) {
	c := Consolidate(SizeCounts{Size60: 5}, []ConsolidationRule{rule(1, Size60, 2, Size80)})

	assert.Equal(t, SizeCounts{Size60: 1, Size80: 2}, c.Counts)
	size, _ := FinalSize(c.Counts)
	assert.Equal(t, Size80, size)
}

// The 80→120 rule is checked before 60→80 produces any 80s and is not revisited.
func TestConsolidate_SinglePassChain(t *testing.T) {
	rules := []ConsolidationRule{
		rule(1, Size60, 2, Size80),
		rule(2, Size80, 2, Size120),
	}
	c := Consolidate(SizeCounts{Size60: 3}, rules)

	assert.Equal(t, SizeCounts{Size60: 1, Size80: 1}, c.Counts)
	size, _ := FinalSize(c.Counts)
	assert.Equal(t, Size80, size)

	require.Len(t, c.AppliedRules, 1)
	assert.Equal(t, int64(1), c.AppliedRules[0].ID)
}

func TestConsolidate_LaterRuleOutputIsNotRevisited(t *testing.T) {
	// 100→120 runs before 80→100 and only sees the original single 100.
	rules := []ConsolidationRule{
		rule(1, Size100, 2, Size120),
		rule(2, Size80, 2, Size100),
	}
	c := Consolidate(SizeCounts{Size80: 4, Size100: 1}, rules)

	assert.Equal(t, SizeCounts{Size80: 0, Size100: 3}, c.Counts)
}

func TestConsolidate_NoRulesIsIdentity(t *testing.T) {
	original := SizeCounts{Size60: 3, Size120: 1}
	c := Consolidate(original, nil)

	assert.Equal(t, original, c.Counts)
	assert.Empty(t, c.AppliedRules)
	assert.Empty(t, c.Merges)

	size, ok := FinalSize(c.Counts)
	require.True(t, ok)
	assert.Equal(t, Size120, size)
}

func TestConsolidate_DisabledRuleIsInert(t *testing.T) {
	r := rule(1, Size60, 2, Size80)
	r.Enabled = false

	c := Consolidate(SizeCounts{Size60: 4}, []ConsolidationRule{r})

	assert.Equal(t, SizeCounts{Size60: 4}, c.Counts)
	assert.Empty(t, c.AppliedRules)
}

func TestConsolidate_DoesNotMutateInput(t *testing.T) {
	original := SizeCounts{Size60: 4}
	rules := []ConsolidationRule{rule(2, Size60, 2, Size80), rule(1, Size80, 2, Size100)}
	rulesBefore := append([]ConsolidationRule(nil), rules...)

	Consolidate(original, rules)

	assert.Equal(t, SizeCounts{Size60: 4}, original)
	assert.Equal(t, rulesBefore, rules)
}

func TestConsolidate_AppliedRulesUseOriginalCounts(t *testing.T) {
	// Both rules read from 80. The larger-ID rule runs second and finds nothing left,
	// yet it is still reported because the original count met its threshold.
	rules := []ConsolidationRule{
		rule(1, Size80, 2, Size100),
		rule(2, Size80, 2, Size120),
	}
	c := Consolidate(SizeCounts{Size80: 2}, rules)

	assert.Equal(t, SizeCounts{Size80: 0, Size100: 1}, c.Counts)
	assert.Len(t, c.AppliedRules, 2)
	assert.Len(t, c.Merges, 1)
}

func TestConsolidate_ConservesUnits(t *testing.T) {
	original := SizeCounts{Size60: 7, Size80: 3, Size100: 5}
	rules := []ConsolidationRule{
		rule(1, Size60, 2, Size80),
		rule(2, Size80, 3, Size120),
		rule(3, Size100, 2, Size140),
	}
	c := Consolidate(original, rules)

	consumed, produced := 0, 0
	for _, m := range c.Merges {
		assert.Equal(t, m.Sets*rules[m.RuleID-1].Quantity, m.UnitsConsumed)
		consumed += m.UnitsConsumed
		produced += m.Sets
	}
	assert.Equal(t, original.Total()-consumed+produced, c.Counts.Total())
}

func TestOrderRules_DescendingFromSizeRegardlessOfInput(t *testing.T) {
	a := rule(3, Size60, 2, Size80)
	b := rule(1, Size100, 2, Size120)
	c := rule(2, Size80, 2, Size100)
	d := rule(4, Size100, 3, Size140)

	inputs := [][]ConsolidationRule{
		{a, b, c, d},
		{d, c, b, a},
		{c, a, d, b},
	}
	for _, in := range inputs {
		ordered := OrderRules(in)
		require.Len(t, ordered, 4)
		assert.Equal(t, []int64{1, 4, 2, 3}, []int64{ordered[0].ID, ordered[1].ID, ordered[2].ID, ordered[3].ID})
	}
}

func TestConsolidate_ZeroQuantityRuleTerminates(t *testing.T) {
	c := Consolidate(SizeCounts{Size60: 3}, []ConsolidationRule{rule(1, Size60, 0, Size80)})
	assert.Equal(t, SizeCounts{Size60: 3}, c.Counts)
}

func TestFinalSize(t *testing.T) {
	_, ok := FinalSize(SizeCounts{})
	assert.False(t, ok)

	_, ok = FinalSize(SizeCounts{Size60: 0, Size80: 0})
	assert.False(t, ok)

	size, ok := FinalSize(SizeCounts{Size60: 1, Size140: 0, Size100: 2})
	require.True(t, ok)
	assert.Equal(t, Size100, size)
}

func TestConsolidationRule_Validate(t *testing.T) {
	assert.NoError(t, rule(1, Size60, 2, Size80).Validate())

	tests := []struct {
		name string
		rule ConsolidationRule
	}{
		{"quantity below two", rule(1, Size60, 1, Size80)},
		{"to equals from", rule(1, Size80, 2, Size80)},
		{"to smaller than from", rule(1, Size100, 2, Size80)},
		{"unknown from size", rule(1, ShippingSize(70), 2, Size80)},
		{"unknown to size", rule(1, Size60, 2, ShippingSize(90))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			var invalid *InvalidRuleConfigurationError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, int64(1), invalid.RuleID)
		})
	}
}
