// Package fixedpoint implements 18-decimal ("WAD") fixed-point arithmetic on
// big integers. All pricing math in the vault engine runs through the
// generalized power x^y = exp(y*ln(x)); the logarithm and exponential are
// implemented with integer-only algorithms so results are deterministic
// across platforms. Domain violations and overflows surface as errors,
// never panics.
package fixedpoint

import (
	"errors"
	"math/big"
)

var (
	// ErrLogDomain indicates a logarithm of a non-positive value was requested.
	ErrLogDomain = errors.New("fixedpoint: log argument must be positive")
	// ErrPowDomain indicates a power with a non-positive base was requested.
	ErrPowDomain = errors.New("fixedpoint: pow base must be positive")
	// ErrExpOverflow indicates the exponential result exceeds the 256-bit accounting domain.
	ErrExpOverflow = errors.New("fixedpoint: exp overflow")
	// ErrDivZero indicates a division by zero.
	ErrDivZero = errors.New("fixedpoint: division by zero")
)

var (
	wad    = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	wadWad = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	twoWad = new(big.Int).Lsh(wad, 1)

	// ln(2) scaled by 1e18.
	ln2Wad = big.NewInt(693_147_180_559_945_309)

	// exp(x) for x at or above this bound does not fit the signed 256-bit
	// accounting domain the engine casts into.
	expOverflowBound = mustBig("135305999368893231589")
	// exp(x) for x at or below this bound rounds to zero at WAD precision.
	expZeroBound = mustBig("-42139678854452767551")
)

// log2FracRounds bounds the fractional bits recovered by Log2Wad. Sixty
// rounds resolve contributions down to WAD/2^60 < 1, i.e. full precision.
const log2FracRounds = 60

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpoint: bad constant " + s)
	}
	return v
}

// WAD returns the fixed-point scale (10^18) as a fresh big integer.
func WAD() *big.Int { return new(big.Int).Set(wad) }

// WADWAD returns the squared scale (10^36), used to express reciprocal
// exponents: (WADWAD / oneMinusAmp) is 1/(1-amp) in WAD.
func WADWAD() *big.Int { return new(big.Int).Set(wadWad) }

// MulWadDown returns a*b/WAD rounded down.
func MulWadDown(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, wad)
}

// MulWadUp returns a*b/WAD rounded up. Both operands must be non-negative.
func MulWadUp(a, b *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	out.Add(out, new(big.Int).Sub(wad, big.NewInt(1)))
	return out.Quo(out, wad)
}

// DivWadDown returns a*WAD/b rounded down.
func DivWadDown(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivZero
	}
	out := new(big.Int).Mul(a, wad)
	return out.Quo(out, b), nil
}

// DivWadUp returns a*WAD/b rounded up. Both operands must be non-negative.
func DivWadUp(a, b *big.Int) (*big.Int, error) {
	if b.Sign() == 0 {
		return nil, ErrDivZero
	}
	out := new(big.Int).Mul(a, wad)
	out.Add(out, new(big.Int).Sub(b, big.NewInt(1)))
	return out.Quo(out, b), nil
}

// Log2Wad returns log2(x/WAD)*WAD for x > 0. The result is signed: inputs
// below one WAD produce negative logarithms.
//
// The integer part is recovered by normalising x into [WAD, 2*WAD); the
// fractional part by repeated squaring, one bit per round.
func Log2Wad(x *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrLogDomain
	}
	y := new(big.Int).Set(x)
	major := int64(0)
	for y.Cmp(twoWad) >= 0 {
		y.Rsh(y, 1)
		major++
	}
	for y.Cmp(wad) < 0 {
		y.Lsh(y, 1)
		major--
	}
	out := new(big.Int).Mul(big.NewInt(major), wad)

	bit := new(big.Int).Rsh(wad, 1)
	for i := 0; i < log2FracRounds && bit.Sign() > 0; i++ {
		y.Mul(y, y)
		y.Quo(y, wad)
		if y.Cmp(twoWad) >= 0 {
			out.Add(out, bit)
			y.Rsh(y, 1)
		}
		bit.Rsh(bit, 1)
	}
	return out, nil
}

// LnWad returns ln(x/WAD)*WAD for x > 0.
func LnWad(x *big.Int) (*big.Int, error) {
	l2, err := Log2Wad(x)
	if err != nil {
		return nil, err
	}
	l2.Mul(l2, ln2Wad)
	return l2.Quo(l2, wad), nil
}

// ExpWad returns e^(x/WAD)*WAD. Inputs at or above ~135.3*WAD fail with
// ErrExpOverflow; inputs at or below ~-42.14*WAD return zero (the result
// is smaller than one wei).
func ExpWad(x *big.Int) (*big.Int, error) {
	if x.Sign() < 0 {
		if x.Cmp(expZeroBound) <= 0 {
			return big.NewInt(0), nil
		}
		pos, err := ExpWad(new(big.Int).Neg(x))
		if err != nil {
			return nil, err
		}
		out := new(big.Int).Set(wadWad)
		return out.Quo(out, pos), nil
	}
	if x.Cmp(expOverflowBound) >= 0 {
		return nil, ErrExpOverflow
	}

	// Split x = n*ln(2) + r with r in [0, ln(2)), so e^x = 2^n * e^r.
	n := new(big.Int).Quo(x, ln2Wad)
	r := new(big.Int).Sub(x, new(big.Int).Mul(n, ln2Wad))

	// e^r by Taylor series; terms shrink by at least r/(k*WAD) < 0.7/k.
	sum := new(big.Int).Set(wad)
	term := new(big.Int).Set(wad)
	for k := int64(1); term.Sign() > 0; k++ {
		term.Mul(term, r)
		term.Quo(term, new(big.Int).Mul(wad, big.NewInt(k)))
		sum.Add(sum, term)
	}
	return sum.Lsh(sum, uint(n.Uint64())), nil
}

// PowWad returns (x/WAD)^(y/WAD)*WAD for x > 0, computed as exp(y*ln(x)).
// The unit exponents are handled exactly: y = WAD returns x itself and
// y = 0 returns WAD, so a flat curve (amp = 0) prices without rounding.
func PowWad(x, y *big.Int) (*big.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrPowDomain
	}
	switch {
	case y.Sign() == 0:
		return WAD(), nil
	case y.Cmp(wad) == 0:
		return new(big.Int).Set(x), nil
	}
	ln, err := LnWad(x)
	if err != nil {
		return nil, err
	}
	arg := new(big.Int).Mul(y, ln)
	arg.Quo(arg, wad)
	return ExpWad(arg)
}
