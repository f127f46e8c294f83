package replay

import (
	"fmt"
	"math/big"
	"strings"
)

// decimal is an exact fixed-point number: units scaled by 10^-scale.
// Financial amounts never pass through binary floating point, so all
// arithmetic in the fold happens here.
type decimal struct {
	units *big.Int
	scale int
}

var decTen = big.NewInt(10)

// parseDecimal accepts strings of the form [-]digits[.digits].
func parseDecimal(s string) (decimal, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" || !allDigits(intPart) {
		return decimal{}, fmt.Errorf("invalid decimal %q", orig)
	}
	if hasFrac && (fracPart == "" || !allDigits(fracPart)) {
		return decimal{}, fmt.Errorf("invalid decimal %q", orig)
	}
	units, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return decimal{}, fmt.Errorf("invalid decimal %q", orig)
	}
	if neg {
		units.Neg(units)
	}
	return decimal{units: units, scale: len(fracPart)}, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func zeroDecimal() decimal {
	return decimal{units: new(big.Int), scale: 0}
}

// rescale returns d expressed with at least the given scale.
func (d decimal) rescale(scale int) decimal {
	if scale <= d.scale {
		return d
	}
	mult := new(big.Int).Exp(decTen, big.NewInt(int64(scale-d.scale)), nil)
	return decimal{units: new(big.Int).Mul(d.units, mult), scale: scale}
}

func (d decimal) add(other decimal) decimal {
	scale := d.scale
	if other.scale > scale {
		scale = other.scale
	}
	a := d.rescale(scale)
	b := other.rescale(scale)
	return decimal{units: new(big.Int).Add(a.units, b.units), scale: scale}
}

func (d decimal) mul(other decimal) decimal {
	return decimal{
		units: new(big.Int).Mul(d.units, other.units),
		scale: d.scale + other.scale,
	}
}

func (d decimal) neg() decimal {
	return decimal{units: new(big.Int).Neg(d.units), scale: d.scale}
}

func (d decimal) sign() int {
	return d.units.Sign()
}

// String renders the normalized form: no trailing fraction zeros, no
// leading zeros, "-0" collapses to "0". Normalization keeps derived
// snapshot bytes stable regardless of the scales seen in the inputs.
func (d decimal) String() string {
	units := new(big.Int).Set(d.units)
	scale := d.scale
	if units.Sign() == 0 {
		return "0"
	}
	rem := new(big.Int)
	for scale > 0 {
		q, r := new(big.Int).QuoRem(units, decTen, rem)
		if r.Sign() != 0 {
			break
		}
		units = q
		scale--
	}
	neg := units.Sign() < 0
	digits := new(big.Int).Abs(units).String()
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if scale == 0 {
		b.WriteString(digits)
		return b.String()
	}
	if len(digits) <= scale {
		b.WriteString("0.")
		b.WriteString(strings.Repeat("0", scale-len(digits)))
		b.WriteString(digits)
	} else {
		b.WriteString(digits[:len(digits)-scale])
		b.WriteByte('.')
		b.WriteString(digits[len(digits)-scale:])
	}
	return b.String()
}
