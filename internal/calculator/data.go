package calculator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ShippingSize is a carrier parcel size class (sum of the three box dimensions in cm)
type ShippingSize int

const (
	Size60  ShippingSize = 60
	Size80  ShippingSize = 80
	Size100 ShippingSize = 100
	Size120 ShippingSize = 120
	Size140 ShippingSize = 140
	Size160 ShippingSize = 160
)

// AllSizes lists every supported size, smallest first
var AllSizes = []ShippingSize{Size60, Size80, Size100, Size120, Size140, Size160}

var (
	ErrInvalidShippingSize = errors.New("invalid shipping size")
	ErrInvalidCarrier      = errors.New("invalid carrier")
	ErrUnknownPricingMode  = errors.New("unknown pricing mode")
	ErrUnknownPrefecture   = errors.New("unknown prefecture")
)

// Valid reports whether s is one of the supported sizes
func (s ShippingSize) Valid() bool {
	for _, size := range AllSizes {
		if s == size {
			return true
		}
	}
	return false
}

func (s ShippingSize) String() string {
	return strconv.Itoa(int(s))
}

// ParseShippingSize converts an integer into a ShippingSize
func ParseShippingSize(v int) (ShippingSize, error) {
	s := ShippingSize(v)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidShippingSize, v)
	}
	return s, nil
}

// Carrier identifies a parcel carrier. The calculator only uses it as a lookup key.
type Carrier string

const (
	CarrierYamato    Carrier = "yamato"
	CarrierSagawa    Carrier = "sagawa"
	CarrierJapanPost Carrier = "japan_post"
)

// AllCarriers lists the supported carriers in display order
var AllCarriers = []Carrier{CarrierYamato, CarrierSagawa, CarrierJapanPost}

var carrierNames = map[Carrier]string{
	CarrierYamato:    "Yamato Transport",
	CarrierSagawa:    "Sagawa Express",
	CarrierJapanPost: "Japan Post",
}

// Name returns the carrier display name
func (c Carrier) Name() string {
	if name, ok := carrierNames[c]; ok {
		return name
	}
	return string(c)
}

// ParseCarrier normalises and validates a carrier code
func ParseCarrier(s string) (Carrier, error) {
	c := Carrier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := carrierNames[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCarrier, s)
	}
	return c, nil
}

// PricingMode selects which rate table dimension prices a shipment
type PricingMode string

const (
	ModeFlatRate   PricingMode = "flat_rate"
	ModeZone       PricingMode = "zone"
	ModePrefecture PricingMode = "prefecture"
)

// AllPricingModes lists the supported pricing modes
var AllPricingModes = []PricingMode{ModeFlatRate, ModeZone, ModePrefecture}

// ParsePricingMode validates a pricing mode string
func ParsePricingMode(s string) (PricingMode, error) {
	m := PricingMode(strings.TrimSpace(s))
	switch m {
	case ModeFlatRate, ModeZone, ModePrefecture:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPricingMode, s)
}

// CartLine is one line of a prospective shipment
type CartLine struct {
	Size     ShippingSize `json:"size"`
	Quantity int          `json:"quantity"`
}

// ConsolidationRule merges Quantity packages of FromSize into one package of ToSize
type ConsolidationRule struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	FromSize ShippingSize `json:"fromSize"`
	Quantity int          `json:"quantity"`
	ToSize   ShippingSize `json:"toSize"`
	Enabled  bool         `json:"enabled"`
}

// Validate checks a rule at authoring time. The engine itself does not call it.
func (r ConsolidationRule) Validate() error {
	switch {
	case !r.FromSize.Valid():
		return &InvalidRuleConfigurationError{RuleID: r.ID, Reason: fmt.Sprintf("fromSize %d is not a shipping size", r.FromSize)}
	case !r.ToSize.Valid():
		return &InvalidRuleConfigurationError{RuleID: r.ID, Reason: fmt.Sprintf("toSize %d is not a shipping size", r.ToSize)}
	case r.Quantity < 2:
		return &InvalidRuleConfigurationError{RuleID: r.ID, Reason: "quantity must be at least 2"}
	case r.ToSize <= r.FromSize:
		return &InvalidRuleConfigurationError{RuleID: r.ID, Reason: "toSize must be larger than fromSize"}
	}
	return nil
}

// Zone is an administrator-defined group of prefectures sharing one rate
type Zone struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
}

// PrefectureZoneAssignment maps a prefecture to at most one zone
type PrefectureZoneAssignment struct {
	Prefecture string `json:"prefecture"`
	ZoneID     int64  `json:"zoneId"`
}

// FlatRate prices a size for a carrier regardless of destination
type FlatRate struct {
	Carrier       Carrier      `json:"carrier"`
	Size          ShippingSize `json:"size"`
	BasePrice     int64        `json:"basePrice"`
	CoolSurcharge int64        `json:"coolSurcharge"`
}

// ZoneRate prices a size for a carrier into one zone
type ZoneRate struct {
	Carrier       Carrier      `json:"carrier"`
	Size          ShippingSize `json:"size"`
	ZoneID        int64        `json:"zoneId"`
	BasePrice     int64        `json:"basePrice"`
	CoolSurcharge int64        `json:"coolSurcharge"`
}

// PrefectureRate prices a size for a carrier into one prefecture
type PrefectureRate struct {
	Carrier       Carrier      `json:"carrier"`
	Size          ShippingSize `json:"size"`
	Prefecture    string       `json:"prefecture"`
	BasePrice     int64        `json:"basePrice"`
	CoolSurcharge int64        `json:"coolSurcharge"`
}

// RateTable is one of FlatRateTable, ZoneRateTable or PrefectureRateTable.
type RateTable interface {
	Mode() PricingMode
	rateTable()
}

// FlatRateTable holds the rows for flat_rate mode
type FlatRateTable struct {
	Rows []FlatRate
}

// ZoneRateTable holds the rows for zone mode together with the prefecture assignments
// needed to turn a destination into a zone.
type ZoneRateTable struct {
	Rows        []ZoneRate
	Assignments []PrefectureZoneAssignment
}

// PrefectureRateTable holds the rows for prefecture mode
type PrefectureRateTable struct {
	Rows []PrefectureRate
}

func (FlatRateTable) Mode() PricingMode       { return ModeFlatRate }
func (ZoneRateTable) Mode() PricingMode       { return ModeZone }
func (PrefectureRateTable) Mode() PricingMode { return ModePrefecture }

func (FlatRateTable) rateTable()       {}
func (ZoneRateTable) rateTable()       {}
func (PrefectureRateTable) rateTable() {}

// Prefectures lists the 47 prefectures in JIS code order
var Prefectures = []string{
	"北海道", "青森県", "岩手県", "宮城県", "秋田県", "山形県", "福島県",
	"茨城県", "栃木県", "群馬県", "埼玉県", "千葉県", "東京都", "神奈川県",
	"新潟県", "富山県", "石川県", "福井県", "山梨県", "長野県", "岐阜県",
	"静岡県", "愛知県", "三重県", "滋賀県", "京都府", "大阪府", "兵庫県",
	"奈良県", "和歌山県", "鳥取県", "島根県", "岡山県", "広島県", "山口県",
	"徳島県", "香川県", "愛媛県", "高知県", "福岡県", "佐賀県", "長崎県",
	"熊本県", "大分県", "宮崎県", "鹿児島県", "沖縄県",
}

// IsPrefecture reports whether name is one of the 47 prefectures
func IsPrefecture(name string) bool {
	for _, p := range Prefectures {
		if p == name {
			return true
		}
	}
	return false
}
