package calculator

import "fmt"

// Rate is the resolved price pair for one shipment
type Rate struct {
	BasePrice     int64 `json:"basePrice"`
	CoolSurcharge int64 `json:"coolSurcharge"`
	// ZoneID is the zone the destination resolved to (zone mode only)
	ZoneID int64 `json:"zoneId,omitempty"`
}

// Total returns the price with the cool surcharge applied when requested
func (r Rate) Total(cool bool) int64 {
	if cool {
		return r.BasePrice + r.CoolSurcharge
	}
	return r.BasePrice
}

// ResolveRate finds the single rate row for carrier and size in the given table.
// prefecture is ignored in flat_rate mode.
func ResolveRate(table RateTable, carrier Carrier, size ShippingSize, prefecture string) (Rate, error) {
	switch t := table.(type) {
	case FlatRateTable:
		return resolveFlat(t, carrier, size)
	case ZoneRateTable:
		return resolveZone(t, carrier, size, prefecture)
	case PrefectureRateTable:
		return resolvePrefecture(t, carrier, size, prefecture)
	case nil:
		return Rate{}, fmt.Errorf("%w: no rate table", ErrUnknownPricingMode)
	default:
		return Rate{}, fmt.Errorf("%w: %T", ErrUnknownPricingMode, table)
	}
}

func resolveFlat(t FlatRateTable, carrier Carrier, size ShippingSize) (Rate, error) {
	for _, row := range t.Rows {
		if row.Carrier == carrier && row.Size == size {
			return Rate{BasePrice: row.BasePrice, CoolSurcharge: row.CoolSurcharge}, nil
		}
	}
	return Rate{}, &NoMatchingRateError{Mode: ModeFlatRate, Carrier: carrier, Size: size}
}

func resolveZone(t ZoneRateTable, carrier Carrier, size ShippingSize, prefecture string) (Rate, error) {
	zoneID, ok := zoneFor(t.Assignments, prefecture)
	if !ok {
		return Rate{}, &UnassignedZoneError{Prefecture: prefecture}
	}

	for _, row := range t.Rows {
		if row.Carrier == carrier && row.Size == size && row.ZoneID == zoneID {
			return Rate{BasePrice: row.BasePrice, CoolSurcharge: row.CoolSurcharge, ZoneID: zoneID}, nil
		}
	}
	return Rate{}, &NoMatchingRateError{Mode: ModeZone, Carrier: carrier, Size: size, ZoneID: zoneID, Prefecture: prefecture}
}

func resolvePrefecture(t PrefectureRateTable, carrier Carrier, size ShippingSize, prefecture string) (Rate, error) {
	for _, row := range t.Rows {
		if row.Carrier == carrier && row.Size == size && row.Prefecture == prefecture {
			return Rate{BasePrice: row.BasePrice, CoolSurcharge: row.CoolSurcharge}, nil
		}
	}
	return Rate{}, &NoMatchingRateError{Mode: ModePrefecture, Carrier: carrier, Size: size, Prefecture: prefecture}
}

// zoneFor returns the zone a prefecture is assigned to. The store keeps at most one
// assignment per prefecture; the first match wins if a caller passes duplicates.
func zoneFor(assignments []PrefectureZoneAssignment, prefecture string) (int64, bool) {
	if prefecture == "" {
		return 0, false
	}
	for _, a := range assignments {
		if a.Prefecture == prefecture {
			return a.ZoneID, true
		}
	}
	return 0, false
}
