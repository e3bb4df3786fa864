package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		raw  string
		want Cents
	}{
		{"0", 0},
		{"12.34", 1234},
		{"100.00", 10000},
		{"2.005", 201},
		{"2.004", 200},
		{"0.995", 100},
		{"-2.005", -201},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("12,34"); err == nil {
		t.Fatalf("expected parse error for comma-separated input")
	}
	if _, err := Parse(""); err == nil {
		t.Fatalf("expected parse error for empty input")
	}
}

func TestNonNegativeRejectsNegative(t *testing.T) {
	if _, err := NonNegative(decimal.NewFromFloat(-0.01)); err == nil {
		t.Fatalf("expected ErrInvalidAmount for negative amount")
	}
	if _, err := ParseNonNegative("-5.00"); err == nil {
		t.Fatalf("expected ErrInvalidAmount for negative string")
	}
	got, err := NonNegative(decimal.NewFromFloat(5.50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 550 {
		t.Fatalf("got %d, want 550", got)
	}
}

func TestDollarsRoundTrip(t *testing.T) {
	for _, raw := range []string{"0.00", "0.01", "12.34", "999999.99", "248.98"} {
		cents, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", raw, err)
		}
		if back := cents.Dollars(); back != raw {
			t.Fatalf("round trip %q -> %d -> %q", raw, cents, back)
		}
	}
}
