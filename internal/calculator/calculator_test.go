package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestFlatTable() FlatRateTable {
	return FlatRateTable{Rows: []FlatRate{
		{Carrier: CarrierYamato, Size: Size60, BasePrice: 930, CoolSurcharge: 220},
		{Carrier: CarrierYamato, Size: Size80, BasePrice: 1150, CoolSurcharge: 220},
		{Carrier: CarrierSagawa, Size: Size80, BasePrice: 1100, CoolSurcharge: 330},
		{Carrier: CarrierJapanPost, Size: Size80, BasePrice: 1070, CoolSurcharge: 0},
	}}
}

func createTestZoneTable() ZoneRateTable {
	return ZoneRateTable{
		Rows: []ZoneRate{
			{Carrier: CarrierYamato, Size: Size80, ZoneID: 1, BasePrice: 1150, CoolSurcharge: 220},
			{Carrier: CarrierYamato, Size: Size80, ZoneID: 2, BasePrice: 1800, CoolSurcharge: 440},
		},
		Assignments: []PrefectureZoneAssignment{
			{Prefecture: "東京都", ZoneID: 1},
			{Prefecture: "沖縄県", ZoneID: 2},
			{Prefecture: "北海道", ZoneID: 3},
		},
	}
}

func createTestPrefectureTable() PrefectureRateTable {
	return PrefectureRateTable{Rows: []PrefectureRate{
		{Carrier: CarrierSagawa, Size: Size100, Prefecture: "大阪府", BasePrice: 1400, CoolSurcharge: 330},
		{Carrier: CarrierSagawa, Size: Size100, Prefecture: "沖縄県", BasePrice: 2600, CoolSurcharge: 660},
	}}
}

func TestCalculate_FlatRate(t *testing.T) {
	params := CalculateParams{
		Lines:     []CartLine{{Size: Size60, Quantity: 2}},
		Carrier:   CarrierYamato,
		RateTable: createTestFlatTable(),
		Rules:     []ConsolidationRule{rule(1, Size60, 2, Size80)},
	}

	result, err := Calculate(params)
	require.NoError(t, err)

	assert.Equal(t, ModeFlatRate, result.Mode)
	assert.Equal(t, SizeCounts{Size60: 2}, result.OriginalSizeCounts)
	assert.Equal(t, SizeCounts{Size60: 0, Size80: 1}, result.ConsolidatedSizeCounts)
	assert.Equal(t, Size80, result.FinalSize)
	assert.Len(t, result.AppliedRules, 1)
	assert.Equal(t, int64(1150), result.BasePrice)
	assert.Equal(t, int64(0), result.CoolSurcharge)
	assert.Equal(t, int64(1150), result.Total)
}

func TestCalculate_CoolSurchargeIsAdditive(t *testing.T) {
	tables := []RateTable{createTestFlatTable(), createTestZoneTable()}
	for _, table := range tables {
		params := CalculateParams{
			Lines:      []CartLine{{Size: Size80, Quantity: 1}},
			Carrier:    CarrierYamato,
			Prefecture: "沖縄県",
			RateTable:  table,
		}

		plain, err := Calculate(params)
		require.NoError(t, err)
		assert.Equal(t, plain.BasePrice, plain.Total)

		params.CoolDelivery = true
		cool, err := Calculate(params)
		require.NoError(t, err)
		assert.Equal(t, cool.BasePrice+cool.CoolSurcharge, cool.Total)
		assert.True(t, cool.CoolSurcharge > 0)
		assert.Equal(t, plain.BasePrice, cool.BasePrice)
	}
}

func TestCalculate_ZoneMode(t *testing.T) {
	result, err := Calculate(CalculateParams{
		Lines:        []CartLine{{Size: Size80, Quantity: 1}},
		Carrier:      CarrierYamato,
		Prefecture:   "沖縄県",
		RateTable:    createTestZoneTable(),
		CoolDelivery: true,
	})
	require.NoError(t, err)

	assert.Equal(t, ModeZone, result.Mode)
	assert.Equal(t, int64(2), result.ZoneID)
	assert.Equal(t, int64(1800+440), result.Total)
}

func TestCalculate_PrefectureMode(t *testing.T) {
	result, err := Calculate(CalculateParams{
		Lines:      []CartLine{{Size: Size100, Quantity: 1}, {Size: Size60, Quantity: 3}},
		Carrier:    CarrierSagawa,
		Prefecture: "大阪府",
		RateTable:  createTestPrefectureTable(),
	})
	require.NoError(t, err)

	assert.Equal(t, Size100, result.FinalSize)
	assert.Equal(t, int64(1400), result.Total)
}

func TestCalculate_EmptyCart(t *testing.T) {
	for _, lines := range [][]CartLine{nil, {{Size: Size60, Quantity: 0}}} {
		_, err := Calculate(CalculateParams{Lines: lines, Carrier: CarrierYamato, RateTable: createTestFlatTable()})

		var empty *EmptyCartError
		assert.ErrorAs(t, err, &empty)
	}
}

func TestCalculate_NoMatchingFlatRate(t *testing.T) {
	_, err := Calculate(CalculateParams{
		Lines:     []CartLine{{Size: Size100, Quantity: 1}},
		Carrier:   CarrierYamato,
		RateTable: createTestFlatTable(),
	})

	var noRate *NoMatchingRateError
	require.ErrorAs(t, err, &noRate)
	assert.Equal(t, CarrierYamato, noRate.Carrier)
	assert.Equal(t, Size100, noRate.Size)
	assert.Equal(t, ModeFlatRate, noRate.Mode)
	assert.Contains(t, err.Error(), "yamato")
	assert.Contains(t, err.Error(), "100")
}

func TestCalculate_UnassignedZone(t *testing.T) {
	_, err := Calculate(CalculateParams{
		Lines:      []CartLine{{Size: Size80, Quantity: 1}},
		Carrier:    CarrierYamato,
		Prefecture: "京都府",
		RateTable:  createTestZoneTable(),
	})

	var unassigned *UnassignedZoneError
	require.ErrorAs(t, err, &unassigned)
	assert.Equal(t, "京都府", unassigned.Prefecture)
}

func TestCalculate_ZoneWithoutRate(t *testing.T) {
	_, err := Calculate(CalculateParams{
		Lines:      []CartLine{{Size: Size80, Quantity: 1}},
		Carrier:    CarrierYamato,
		Prefecture: "北海道",
		RateTable:  createTestZoneTable(),
	})

	var noRate *NoMatchingRateError
	require.ErrorAs(t, err, &noRate)
	assert.Equal(t, int64(3), noRate.ZoneID)
	assert.Equal(t, ModeZone, noRate.Mode)
}

func TestCalculate_PrefectureWithoutRate(t *testing.T) {
	_, err := Calculate(CalculateParams{
		Lines:      []CartLine{{Size: Size100, Quantity: 1}},
		Carrier:    CarrierSagawa,
		Prefecture: "北海道",
		RateTable:  createTestPrefectureTable(),
	})

	var noRate *NoMatchingRateError
	require.ErrorAs(t, err, &noRate)
	assert.Equal(t, "北海道", noRate.Prefecture)
}

func TestCalculate_Deterministic(t *testing.T) {
	params := CalculateParams{
		Lines:     []CartLine{{Size: Size60, Quantity: 5}, {Size: Size80, Quantity: 1}},
		Carrier:   CarrierYamato,
		RateTable: createTestFlatTable(),
		Rules: []ConsolidationRule{
			rule(1, Size60, 2, Size80),
			rule(2, Size80, 4, Size100),
		},
	}

	first, err := Calculate(params)
	require.NoError(t, err)
	second, err := Calculate(params)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Rule order in the input does not matter
	params.Rules = []ConsolidationRule{params.Rules[1], params.Rules[0]}
	third, err := Calculate(params)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestCalculate_DoesNotMutateInputs(t *testing.T) {
	lines := []CartLine{{Size: Size60, Quantity: 4}}
	rules := []ConsolidationRule{rule(1, Size60, 2, Size80)}
	table := createTestFlatTable()

	_, err := Calculate(CalculateParams{Lines: lines, Carrier: CarrierYamato, RateTable: table, Rules: rules})
	require.NoError(t, err)

	assert.Equal(t, []CartLine{{Size: Size60, Quantity: 4}}, lines)
	assert.Equal(t, []ConsolidationRule{rule(1, Size60, 2, Size80)}, rules)
	assert.Equal(t, createTestFlatTable(), table)
}

func TestResolveRate_RejectsMissingOrPointerTables(t *testing.T) {
	table := createTestFlatTable()
	_, err := ResolveRate(&table, CarrierSagawa, Size80, "")
	assert.ErrorIs(t, err, ErrUnknownPricingMode)

	var missing *ZoneRateTable
	assert.NotPanics(t, func() {
		_, err = ResolveRate(missing, CarrierYamato, Size80, "東京都")
	})
	assert.ErrorIs(t, err, ErrUnknownPricingMode)

	_, err = ResolveRate(nil, CarrierSagawa, Size80, "")
	assert.ErrorIs(t, err, ErrUnknownPricingMode)
}

func TestCompareCarriers(t *testing.T) {
	result, err := CompareCarriers(CalculateParams{
		Lines:     []CartLine{{Size: Size80, Quantity: 1}},
		RateTable: createTestFlatTable(),
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Carriers, 3)

	byCarrier := map[Carrier]CarrierResult{}
	for _, r := range result.Carriers {
		byCarrier[r.Carrier] = r
	}
	assert.True(t, byCarrier[CarrierJapanPost].Cheapest)
	assert.False(t, byCarrier[CarrierYamato].Cheapest)
	assert.Equal(t, int64(1100), byCarrier[CarrierSagawa].Breakdown.Total)
}

func TestCompareCarriers_PartialFailure(t *testing.T) {
	result, err := CompareCarriers(CalculateParams{
		Lines:     []CartLine{{Size: Size60, Quantity: 1}},
		RateTable: createTestFlatTable(),
	}, []Carrier{CarrierYamato, CarrierSagawa})
	require.NoError(t, err)
	require.Len(t, result.Carriers, 2)

	assert.True(t, result.Carriers[0].Cheapest)
	assert.Nil(t, result.Carriers[1].Breakdown)
	assert.NotEmpty(t, result.Carriers[1].Error)

	var noRate *NoMatchingRateError
	assert.ErrorAs(t, result.Carriers[1].Err, &noRate)
}

func TestCompareCarriers_EmptyCart(t *testing.T) {
	_, err := CompareCarriers(CalculateParams{RateTable: createTestFlatTable()}, nil)
	var empty *EmptyCartError
	assert.ErrorAs(t, err, &empty)
}

func TestParsers(t *testing.T) {
	c, err := ParseCarrier(" Yamato ")
	require.NoError(t, err)
	assert.Equal(t, CarrierYamato, c)

	_, err = ParseCarrier("pigeon")
	assert.ErrorIs(t, err, ErrInvalidCarrier)

	m, err := ParsePricingMode("prefecture")
	require.NoError(t, err)
	assert.Equal(t, ModePrefecture, m)

	_, err = ParsePricingMode("distance")
	assert.ErrorIs(t, err, ErrUnknownPricingMode)

	s, err := ParseShippingSize(140)
	require.NoError(t, err)
	assert.Equal(t, Size140, s)

	_, err = ParseShippingSize(70)
	assert.ErrorIs(t, err, ErrInvalidShippingSize)

	assert.Len(t, Prefectures, 47)
	assert.True(t, IsPrefecture("沖縄県"))
	assert.False(t, IsPrefecture("Okinawa"))
}
