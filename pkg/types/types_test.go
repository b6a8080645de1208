package types

import (
	"testing"
	"time"
)

func TestParseDollars(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Price
		wantErr bool
	}{
		{"1", PerDollar, false},
		{"0.45", 4500, false},
		{"0.4567", 4567, false},
		{"100.00", 1_000_000, false},
		{"0.123456", 1235, false}, // six decimals, rounded half-up
		{"0.5", 5000, false},
		{"", 0, true},
		{"-0.45", 0, true},
		{".45", 0, true},
		{"0.1234567", 0, true}, // seven decimals
		{"1e3", 0, true},
		{"45¢", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDollars(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDollars(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDollars(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDollars(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPriceRoundTrip(t *testing.T) {
	t.Parallel()
	for _, p := range []Price{0, 100, 4500, 9900, PerDollar, 1_000_000} {
		got, err := ParseDollars(p.Dollars())
		if err != nil {
			t.Fatalf("round-trip %d: %v", p, err)
		}
		if got != p {
			t.Errorf("round-trip %d → %q → %d", p, p.Dollars(), got)
		}
	}
}

func TestPriceFromCents(t *testing.T) {
	t.Parallel()
	if FromCents(45) != 4500 {
		t.Errorf("FromCents(45) = %d, want 4500", FromCents(45))
	}
	if FromCents(45).Cents() != 45 {
		t.Errorf("Cents() = %d, want 45", FromCents(45).Cents())
	}
	// Deprecated cent fields and dollar strings must agree.
	fromDollars, _ := ParseDollars("0.45")
	if FromCents(45) != fromDollars {
		t.Errorf("cent and dollar parses disagree: %d vs %d", FromCents(45), fromDollars)
	}
}

func TestMarketImpliedQuotes(t *testing.T) {
	t.Parallel()
	m := Market{YesBid: FromCents(42), YesAsk: FromCents(47)}

	if got := m.NoBid(); got != FromCents(53) {
		t.Errorf("NoBid = %v, want 53¢", got)
	}
	if got := m.NoAsk(); got != FromCents(58) {
		t.Errorf("NoAsk = %v, want 58¢", got)
	}
	if got := m.SpreadCents(); got != 5 {
		t.Errorf("SpreadCents = %d, want 5", got)
	}
	if got := m.MidCents(); got != 44.5 {
		t.Errorf("MidCents = %v, want 44.5", got)
	}
}

func TestMarketUnpriced(t *testing.T) {
	t.Parallel()
	awaiting := Market{YesBid: 0, YesAsk: PerDollar}
	noQuotes := Market{YesBid: 0, YesAsk: 0}
	priced := Market{YesBid: FromCents(40), YesAsk: FromCents(60)}

	if !awaiting.Unpriced() || !noQuotes.Unpriced() {
		t.Error("placeholder quotes should report Unpriced")
	}
	if priced.Unpriced() {
		t.Error("quoted market should not report Unpriced")
	}
}

func TestOrderbookDerivedAsks(t *testing.T) {
	t.Parallel()
	ob := Orderbook{
		Ticker:  "TEST-24",
		YesBids: []Level{{45, 100}, {44, 200}},
		NoBids:  []Level{{53, 100}, {52, 50}},
	}

	asks := ob.YesAsks()
	want := []Level{{47, 100}, {48, 50}}
	if len(asks) != len(want) {
		t.Fatalf("YesAsks len = %d, want %d", len(asks), len(want))
	}
	for i := range want {
		if asks[i] != want[i] {
			t.Errorf("YesAsks[%d] = %+v, want %+v", i, asks[i], want[i])
		}
	}

	mid, ok := ob.MidCents()
	if !ok || mid != 46 {
		t.Errorf("MidCents = %v, %v; want 46, true", mid, ok)
	}
	spread, ok := ob.SpreadCents()
	if !ok || spread != 2 {
		t.Errorf("SpreadCents = %v, %v; want 2, true", spread, ok)
	}
}

func TestOrderbookValidate(t *testing.T) {
	t.Parallel()
	good := Orderbook{YesBids: []Level{{45, 10}}, NoBids: []Level{{53, 10}}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid book rejected: %v", err)
	}

	bad := []Orderbook{
		{YesBids: []Level{{45, 0}}},            // zero quantity
		{YesBids: []Level{{45, 10}, {45, 20}}}, // duplicate level
		{NoBids: []Level{{0, 10}}},             // price out of range
		{NoBids: []Level{{100, 10}}},
	}
	for i, ob := range bad {
		if err := ob.Validate(); err == nil {
			t.Errorf("case %d: invalid book accepted", i)
		}
	}
}

func TestOrderbookEmpty(t *testing.T) {
	t.Parallel()
	var ob Orderbook
	if _, ok := ob.MidCents(); ok {
		t.Error("empty book should have no midpoint")
	}
	if _, ok := ob.SpreadCents(); ok {
		t.Error("empty book should have no spread")
	}
	if got := ob.BestYesBid(); got != 0 {
		t.Errorf("BestYesBid on empty book = %d", got)
	}
}

func TestSnapshotMid(t *testing.T) {
	t.Parallel()
	s := PriceSnapshot{
		Ticker:     "TEST-24",
		SnapshotTS: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		YesBid:     FromCents(40),
		YesAsk:     FromCents(60),
	}
	if got := s.MidCents(); got != 50 {
		t.Errorf("MidCents = %v, want 50", got)
	}
}
