package pricing

import "github.com/shopspring/decimal"

// RateTable resolves the tax rate for a zone, e.g. 0.21 for 21%.
type RateTable interface {
	Rate(zoneCode string) decimal.Decimal
}

// ZoneRates is a RateTable backed by a static map with a fallback rate.
type ZoneRates struct {
	Rates   map[string]decimal.Decimal
	Default decimal.Decimal
}

// NewZoneRates builds a ZoneRates with normalised zone keys.
func NewZoneRates(rates map[string]decimal.Decimal, fallback decimal.Decimal) ZoneRates {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for zone, rate := range rates {
		normalized[normalizeZone(zone)] = rate
	}
	return ZoneRates{Rates: normalized, Default: fallback}
}

// Rate implements RateTable. Keys of a literal Rates map are matched the same
// way as the zone code.
func (z ZoneRates) Rate(zoneCode string) decimal.Decimal {
	zone := normalizeZone(zoneCode)
	if rate, ok := z.Rates[zone]; ok {
		return rate
	}
	for key, rate := range z.Rates {
		if normalizeZone(key) == zone {
			return rate
		}
	}
	return z.Default
}

// TaxCalculator computes tax on the post-discount subtotal.
type TaxCalculator struct {
	Rates RateTable
}

// Compute returns the tax owed on taxable for the zone, rounded half away from
// zero to a whole minor unit.
func (c TaxCalculator) Compute(taxable Money, zoneCode string) Money {
	if c.Rates == nil || taxable <= 0 {
		return 0
	}
	return ApplyRate(taxable, c.Rates.Rate(zoneCode))
}
