package calculator

import "errors"

// CostBreakdown holds the price of a shipment and how it was derived
type CostBreakdown struct {
	Mode                   PricingMode         `json:"mode"`
	Carrier                Carrier             `json:"carrier"`
	Prefecture             string              `json:"prefecture,omitempty"`
	ZoneID                 int64               `json:"zoneId,omitempty"`
	OriginalSizeCounts     SizeCounts          `json:"originalSizeCounts"`
	ConsolidatedSizeCounts SizeCounts          `json:"consolidatedSizeCounts"`
	FinalSize              ShippingSize        `json:"finalSize"`
	AppliedRules           []ConsolidationRule `json:"appliedRules"`
	Merges                 []Merge             `json:"merges"`
	BasePrice              int64               `json:"basePrice"`
	CoolSurcharge          int64               `json:"coolSurcharge"`
	CoolDelivery           bool                `json:"coolDelivery"`
	Total                  int64               `json:"total"`
}

// CalculateParams holds the inputs of one calculation. All slices are read only.
type CalculateParams struct {
	Lines        []CartLine
	Carrier      Carrier
	Prefecture   string // destination; unused in flat_rate mode
	RateTable    RateTable
	Rules        []ConsolidationRule
	CoolDelivery bool
}

// Calculate performs the complete shipping calculation:
// aggregate sizes, consolidate, pick the final size, then price it.
func Calculate(params CalculateParams) (*CostBreakdown, error) {
	original := AggregateSizes(params.Lines)
	consolidation := Consolidate(original, params.Rules)

	finalSize, ok := FinalSize(consolidation.Counts)
	if !ok {
		return nil, &EmptyCartError{}
	}

	rate, err := ResolveRate(params.RateTable, params.Carrier, finalSize, params.Prefecture)
	if err != nil {
		return nil, err
	}

	// Only report the surcharge that was charged
	coolSurcharge := int64(0)
	if params.CoolDelivery {
		coolSurcharge = rate.CoolSurcharge
	}

	return &CostBreakdown{
		Mode:                   params.RateTable.Mode(),
		Carrier:                params.Carrier,
		Prefecture:             params.Prefecture,
		ZoneID:                 rate.ZoneID,
		OriginalSizeCounts:     original,
		ConsolidatedSizeCounts: consolidation.Counts,
		FinalSize:              finalSize,
		AppliedRules:           consolidation.AppliedRules,
		Merges:                 consolidation.Merges,
		BasePrice:              rate.BasePrice,
		CoolSurcharge:          coolSurcharge,
		CoolDelivery:           params.CoolDelivery,
		Total:                  rate.Total(params.CoolDelivery),
	}, nil
}

// CarrierResult holds the calculation for a single carrier
type CarrierResult struct {
	Carrier     Carrier        `json:"carrier"`
	CarrierName string         `json:"carrierName"`
	Breakdown   *CostBreakdown `json:"breakdown,omitempty"`
	Err         error          `json:"-"`
	Error       string         `json:"error,omitempty"`
	Cheapest    bool           `json:"cheapest"`
}

// MultiCarrierResult holds calculation results for several carriers
type MultiCarrierResult struct {
	Carriers []CarrierResult `json:"carriers"`
}

// CompareCarriers runs Calculate once per carrier. Per-carrier failures (for example a
// missing rate row) are kept in the result rather than aborting the comparison; an
// empty cart fails the whole comparison since no carrier could price it.
func CompareCarriers(params CalculateParams, carriers []Carrier) (*MultiCarrierResult, error) {
	if len(carriers) == 0 {
		carriers = AllCarriers
	}

	results := make([]CarrierResult, 0, len(carriers))
	cheapest := -1

	for _, carrier := range carriers {
		p := params
		p.Carrier = carrier

		res := CarrierResult{Carrier: carrier, CarrierName: carrier.Name()}
		breakdown, err := Calculate(p)
		if err != nil {
			var empty *EmptyCartError
			if errors.As(err, &empty) {
				return nil, err
			}
			res.Err = err
			res.Error = err.Error()
		} else {
			res.Breakdown = breakdown
			if cheapest < 0 || breakdown.Total < results[cheapest].Breakdown.Total {
				cheapest = len(results)
			}
		}
		results = append(results, res)
	}

	if cheapest >= 0 {
		results[cheapest].Cheapest = true
	}

	return &MultiCarrierResult{Carriers: results}, nil
}

// ShippingSizeInfo holds size details for API responses
type ShippingSizeInfo struct {
	Size  ShippingSize `json:"size"`
	Label string       `json:"label"`
}

// GetShippingSizes returns all sizes, smallest first
func GetShippingSizes() []ShippingSizeInfo {
	sizes := make([]ShippingSizeInfo, 0, len(AllSizes))
	for _, s := range AllSizes {
		sizes = append(sizes, ShippingSizeInfo{Size: s, Label: s.String() + "サイズ"})
	}
	return sizes
}

// CarrierInfo holds carrier details for API responses
type CarrierInfo struct {
	Code Carrier `json:"code"`
	Name string  `json:"name"`
}

// GetCarriers returns all carriers in display order
func GetCarriers() []CarrierInfo {
	carriers := make([]CarrierInfo, 0, len(AllCarriers))
	for _, c := range AllCarriers {
		carriers = append(carriers, CarrierInfo{Code: c, Name: c.Name()})
	}
	return carriers
}
