package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// TickScale is the fixed-point scale used for prices and sizes throughout
// the system: 1 unit = 1e-6. All JSON boundaries carry decimal strings;
// internally everything is int64 ticks so arithmetic never drifts.
const TickScale int64 = 1_000_000

// tickDecimals is the number of fractional digits TickScale encodes.
const tickDecimals = 6

// ParseTicks converts a decimal string like "0.60" or "125.5" into fixed-point
// ticks. It rejects empty strings, negative values, malformed input, and more
// than six fractional digits (which would silently lose precision).
func ParseTicks(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("ticks: empty decimal string")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("ticks: negative value %q", s)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > tickDecimals {
		return 0, fmt.Errorf("ticks: %q has more than %d decimal places", s, tickDecimals)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return 0, fmt.Errorf("ticks: invalid decimal %q", s)
	}
	whole.Mul(whole, big.NewInt(TickScale))

	if fracPart != "" {
		frac, ok := new(big.Int).SetString(fracPart, 10)
		if !ok {
			return 0, fmt.Errorf("ticks: invalid decimal %q", s)
		}
		for i := len(fracPart); i < tickDecimals; i++ {
			frac.Mul(frac, big.NewInt(10))
		}
		whole.Add(whole, frac)
	}

	if !whole.IsInt64() {
		return 0, fmt.Errorf("ticks: %q overflows int64", s)
	}
	return whole.Int64(), nil
}

// FormatTicks renders fixed-point ticks as a canonical decimal string with
// trailing fractional zeros trimmed ("0.6", not "0.600000"). FormatTicks and
// ParseTicks round-trip exactly for every int64.
func FormatTicks(t int64) string {
	neg := t < 0
	if neg {
		t = -t
	}
	whole := t / TickScale
	frac := t % TickScale

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%d", whole)
	if frac != 0 {
		fracStr := fmt.Sprintf("%06d", frac)
		fracStr = strings.TrimRight(fracStr, "0")
		b.WriteByte('.')
		b.WriteString(fracStr)
	}
	return b.String()
}

// TicksToBaseUnits converts fixed-point ticks to integer base units for a
// token with the given number of decimals. Collateral and outcome tokens both
// use six decimals, so this is usually an identity, but the conversion stays
// explicit so a different collateral never silently mis-scales.
func TicksToBaseUnits(t int64, decimals int) *big.Int {
	v := big.NewInt(t)
	switch {
	case decimals == tickDecimals:
		return v
	case decimals > tickDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-tickDecimals)), nil)
		return v.Mul(v, scale)
	default:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tickDecimals-decimals)), nil)
		return v.Quo(v, scale)
	}
}

// BaseUnitsToTicks is the inverse of TicksToBaseUnits. It truncates when the
// token has more decimals than the tick scale can carry.
func BaseUnitsToTicks(v *big.Int, decimals int) int64 {
	out := new(big.Int).Set(v)
	switch {
	case decimals > tickDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-tickDecimals)), nil)
		out.Quo(out, scale)
	case decimals < tickDecimals:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tickDecimals-decimals)), nil)
		out.Mul(out, scale)
	}
	if !out.IsInt64() {
		return 0
	}
	return out.Int64()
}

// MulTicks multiplies two tick quantities (e.g. price x amount) and returns
// the product in ticks, rounding toward zero.
func MulTicks(a, b int64) int64 {
	prod := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	prod.Quo(prod, big.NewInt(TickScale))
	if !prod.IsInt64() {
		return 0
	}
	return prod.Int64()
}
