package types

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Price is the canonical fixed-point money unit used everywhere past the
// wire boundary: hundredths of a cent. 1_000_000 = $100.00, 10_000 = $1.00,
// 100 = 1¢. The exchange API carries prices two ways (deprecated integer
// cents and current dollar strings); both normalize to this single unit so
// downstream code never sees a float or a string.
type Price int64

const (
	// PerCent is one cent expressed in Price units.
	PerCent Price = 100
	// PerDollar is one dollar expressed in Price units.
	PerDollar Price = 10_000
)

// dollarPattern is the only accepted shape for wire dollar strings:
// non-negative, up to six decimals.
var dollarPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,6})?$`)

// ParseDollars converts a wire dollar string (e.g. "0.4567") to Price.
// Strings that do not match [0-9]+(\.[0-9]{1,6})? are rejected outright;
// sub-unit precision beyond four decimals is rounded half-up.
func ParseDollars(s string) (Price, error) {
	if !dollarPattern.MatchString(s) {
		return 0, fmt.Errorf("malformed dollar amount %q", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse dollar amount %q: %w", s, err)
	}
	units := d.Mul(decimal.NewFromInt(int64(PerDollar))).Round(0)
	return Price(units.IntPart()), nil
}

// FromCents converts a deprecated integer-cent wire field to Price.
func FromCents(cents int64) Price {
	return Price(cents) * PerCent
}

// Cents returns the price in whole cents, truncating sub-cent precision.
func (p Price) Cents() int64 {
	return int64(p / PerCent)
}

// Dollars renders the price as a dollar string with up to four decimals,
// trailing zeros trimmed. Round-trips through ParseDollars.
func (p Price) Dollars() string {
	d := decimal.New(int64(p), 0).Div(decimal.NewFromInt(int64(PerDollar)))
	s := d.StringFixed(4)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// Prob interprets the price of a binary contract as an implied probability
// in [0, 1]. Only meaningful for contract prices, not fee or balance amounts.
func (p Price) Prob() float64 {
	return float64(p) / float64(PerDollar)
}

func (p Price) String() string {
	return "$" + p.Dollars()
}
