package calculator

import "fmt"

// EmptyCartError is returned when no size has a positive count, so no final size exists
type EmptyCartError struct{}

func (e *EmptyCartError) Error() string {
	return "cart is empty: no shipping size to price"
}

// NoMatchingRateError is returned when the rate table has no row for the key tuple.
// ZoneID is set in zone mode, Prefecture in prefecture mode.
type NoMatchingRateError struct {
	Mode       PricingMode
	Carrier    Carrier
	Size       ShippingSize
	ZoneID     int64
	Prefecture string
}

func (e *NoMatchingRateError) Error() string {
	switch e.Mode {
	case ModeZone:
		return fmt.Sprintf("no %s rate for carrier %s, size %d, zone %d", e.Mode, e.Carrier, e.Size, e.ZoneID)
	case ModePrefecture:
		return fmt.Sprintf("no %s rate for carrier %s, size %d, prefecture %s", e.Mode, e.Carrier, e.Size, e.Prefecture)
	default:
		return fmt.Sprintf("no %s rate for carrier %s, size %d", e.Mode, e.Carrier, e.Size)
	}
}

// UnassignedZoneError is returned in zone mode when the destination prefecture has no zone
type UnassignedZoneError struct {
	Prefecture string
}

func (e *UnassignedZoneError) Error() string {
	return fmt.Sprintf("prefecture %q is not assigned to a zone", e.Prefecture)
}

// InvalidRuleConfigurationError reports a consolidation rule that cannot be saved
type InvalidRuleConfigurationError struct {
	RuleID int64
	Reason string
}

func (e *InvalidRuleConfigurationError) Error() string {
	if e.RuleID != 0 {
		return fmt.Sprintf("invalid consolidation rule %d: %s", e.RuleID, e.Reason)
	}
	return "invalid consolidation rule: " + e.Reason
}
