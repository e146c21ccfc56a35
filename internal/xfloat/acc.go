// Package xfloat provides a widened accumulator for long correlation sums.
//
// Values are held in a big.Float with the 113-bit significand of IEEE
// binary128 and the exponent range of big.Float. Sums of float64 products do
// not overflow inside an Acc, and the product of two float64 values is exact
// at this precision. Rounding to float64 happens only in Float64. Unlike
// big.Float, NaN and infinities propagate instead of panicking.
package xfloat

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// Precision is the significand width in bits.
const Precision = 113

// Acc is a widened running sum. The zero value is 0 and ready to use.
type Acc struct {
	v   big.Float
	nan bool
}

func (a *Acc) init() {
	if a.v.Prec() == 0 {
		a.v.SetPrec(Precision)
	}
}

// Reset sets the sum to 0.
func (a *Acc) Reset() {
	a.v.SetPrec(Precision).SetInt64(0)
	a.nan = false
}

// Add adds x.
func (a *Acc) Add(x float64) {
	a.init()
	if a.nan {
		return
	}
	if math.IsNaN(x) {
		a.nan = true
		return
	}
	var f big.Float
	f.SetPrec(Precision).SetFloat64(x)
	a.addBig(&f)
}

// AddProd adds x*y without rounding the product.
func (a *Acc) AddProd(x, y float64) {
	a.init()
	if a.nan {
		return
	}
	if math.IsNaN(x) || math.IsNaN(y) ||
		(math.IsInf(x, 0) && y == 0) || (math.IsInf(y, 0) && x == 0) {
		a.nan = true
		return
	}
	var fx, fy big.Float
	fx.SetPrec(Precision).SetFloat64(x)
	fy.SetPrec(Precision).SetFloat64(y)
	fx.Mul(&fx, &fy)
	a.addBig(&fx)
}

// AddAcc adds another accumulator.
func (a *Acc) AddAcc(b *Acc) {
	a.init()
	if a.nan {
		return
	}
	if b.nan {
		a.nan = true
		return
	}
	if b.v.Prec() == 0 {
		return
	}
	a.addBig(&b.v)
}

func (a *Acc) addBig(f *big.Float) {
	if a.v.IsInf() && f.IsInf() && a.v.Signbit() != f.Signbit() {
		a.nan = true
		return
	}
	a.v.Add(&a.v, f)
}

// Mul scales the sum by x.
func (a *Acc) Mul(x float64) {
	a.init()
	if a.nan {
		return
	}
	if math.IsNaN(x) || (math.IsInf(x, 0) && a.v.Sign() == 0) || (x == 0 && a.v.IsInf()) {
		a.nan = true
		return
	}
	var f big.Float
	f.SetPrec(Precision).SetFloat64(x)
	a.v.Mul(&a.v, &f)
}

// Quo divides the sum by x.
func (a *Acc) Quo(x float64) {
	a.init()
	if a.nan {
		return
	}
	if math.IsNaN(x) || (x == 0 && a.v.Sign() == 0) || (math.IsInf(x, 0) && a.v.IsInf()) {
		a.nan = true
		return
	}
	var f big.Float
	f.SetPrec(Precision).SetFloat64(x)
	a.v.Quo(&a.v, &f)
}

// IsNaN reports whether a NaN was absorbed.
func (a *Acc) IsNaN() bool { return a.nan }

// Float64 rounds the sum to the nearest float64 (±Inf on overflow).
func (a *Acc) Float64() float64 {
	if a.nan {
		return math.NaN()
	}
	f, _ := a.v.Float64()
	return f
}

var ErrEncoding = errors.New("xfloat: malformed encoding")

const (
	tagFinite byte = iota
	tagNaN
)

// MarshalBinary encodes the full significand and exponent of the sum.
func (a *Acc) MarshalBinary() ([]byte, error) {
	if a.nan {
		return []byte{tagNaN}, nil
	}
	a.init()
	b, err := a.v.GobEncode()
	if err != nil {
		return nil, err
	}
	return append([]byte{tagFinite}, b...), nil
}

// UnmarshalBinary replaces the sum with an encoded one.
func (a *Acc) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty", ErrEncoding)
	}
	switch data[0] {
	case tagNaN:
		a.Reset()
		a.nan = true
		return nil
	case tagFinite:
		var f big.Float
		if err := f.GobDecode(data[1:]); err != nil {
			return fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		a.Reset()
		a.v.Set(&f)
		return nil
	}
	return fmt.Errorf("%w: tag %d", ErrEncoding, data[0])
}
