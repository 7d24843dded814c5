package domain

import (
	"math/big"
	"testing"
)

func TestParseTicks(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0.6", 600_000, false},
		{"0.60", 600_000, false},
		{".5", 500_000, false},
		{"1", 1_000_000, false},
		{"100", 100_000_000, false},
		{"0.000001", 1, false},
		{"125.5", 125_500_000, false},
		{"0", 0, false},
		{" 0.25 ", 250_000, false},
		{"", 0, true},
		{"-0.5", 0, true},
		{"abc", 0, true},
		{"0.1234567", 0, true}, // seventh decimal place would lose precision
		{"1.2.3", 0, true},
		{"99999999999999999999", 0, true}, // overflows int64 ticks
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTicks(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTicks(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTicks(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTicks(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatTicks(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{600_000, "0.6"},
		{1_000_000, "1"},
		{100_000_000, "100"},
		{1, "0.000001"},
		{125_500_000, "125.5"},
		{0, "0"},
		{-600_000, "-0.6"},
	}
	for _, tt := range tests {
		if got := FormatTicks(tt.in); got != tt.want {
			t.Errorf("FormatTicks(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTicksRoundTrip(t *testing.T) {
	// Format then re-parse must return the exact tick count.
	values := []int64{0, 1, 7, 600_000, 999_999, 1_000_000, 1_000_001, 125_500_000, 1 << 40}
	for _, v := range values {
		s := FormatTicks(v)
		back, err := ParseTicks(s)
		if err != nil {
			t.Fatalf("ParseTicks(FormatTicks(%d) = %q): %v", v, s, err)
		}
		if back != v {
			t.Errorf("round trip %d -> %q -> %d", v, s, back)
		}
	}
}

func TestBaseUnitConversions(t *testing.T) {
	// Six-decimal tokens are an identity mapping.
	if got := TicksToBaseUnits(600_000, 6); got.Int64() != 600_000 {
		t.Errorf("TicksToBaseUnits(600000, 6) = %s", got)
	}
	// An 18-decimal token scales up by 1e12.
	want, _ := new(big.Int).SetString("600000000000000000", 10)
	if got := TicksToBaseUnits(600_000, 18); got.Cmp(want) != 0 {
		t.Errorf("TicksToBaseUnits(600000, 18) = %s, want %s", got, want)
	}
	if got := BaseUnitsToTicks(want, 18); got != 600_000 {
		t.Errorf("BaseUnitsToTicks = %d, want 600000", got)
	}
	// A 2-decimal token scales down.
	if got := TicksToBaseUnits(600_000, 2); got.Int64() != 60 {
		t.Errorf("TicksToBaseUnits(600000, 2) = %s, want 60", got)
	}
}

func TestMulTicks(t *testing.T) {
	// 0.6 * 100 = 60
	if got := MulTicks(600_000, 100_000_000); got != 60_000_000 {
		t.Errorf("MulTicks = %d, want 60000000", got)
	}
	// 0.5 * 0.5 = 0.25
	if got := MulTicks(500_000, 500_000); got != 250_000 {
		t.Errorf("MulTicks = %d, want 250000", got)
	}
	if got := MulTicks(0, 123); got != 0 {
		t.Errorf("MulTicks zero = %d", got)
	}
}
