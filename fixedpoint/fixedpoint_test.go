package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func wadTimes(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), WAD())
}

// relErr returns |got-want| * 1e18 / want.
func relErr(got, want *big.Int) *big.Int {
	diff := new(big.Int).Sub(got, want)
	diff.Abs(diff)
	diff.Mul(diff, WAD())
	return diff.Quo(diff, want)
}

func TestLnWadIdentities(t *testing.T) {
	out, err := LnWad(WAD())
	require.NoError(t, err)
	require.Zero(t, out.Sign(), "ln(1) = 0")

	_, err = LnWad(big.NewInt(0))
	require.ErrorIs(t, err, ErrLogDomain)
	_, err = LnWad(big.NewInt(-1))
	require.ErrorIs(t, err, ErrLogDomain)
}

func TestLog2WadPowersOfTwo(t *testing.T) {
	for _, n := range []int64{1, 2, 3, 7, 30} {
		x := new(big.Int).Lsh(WAD(), uint(n))
		out, err := Log2Wad(x)
		require.NoError(t, err)
		require.Equal(t, wadTimes(n), out, "log2(2^%d)", n)
	}
}

func TestExpWadIdentities(t *testing.T) {
	out, err := ExpWad(big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, WAD(), out, "exp(0) = 1")

	// e^1 = 2.718281828...
	out, err = ExpWad(WAD())
	require.NoError(t, err)
	want := big.NewInt(2_718_281_828_459_045_235)
	require.True(t, relErr(out, want).Cmp(big.NewInt(1e6)) < 0, "exp(1) within 1e-12: got %s", out)
}

func TestExpWadBounds(t *testing.T) {
	overflow, ok := new(big.Int).SetString("135305999368893231590", 10)
	require.True(t, ok)
	_, err := ExpWad(overflow)
	require.ErrorIs(t, err, ErrExpOverflow)

	underflow, ok := new(big.Int).SetString("-42139678854452767552", 10)
	require.True(t, ok)
	out, err := ExpWad(underflow)
	require.NoError(t, err)
	require.Zero(t, out.Sign(), "deeply negative exponents underflow to zero")
}

func TestExpLnRoundTrip(t *testing.T) {
	for _, n := range []int64{1, 2, 5, 100, 1_000_000} {
		x := wadTimes(n)
		ln, err := LnWad(x)
		require.NoError(t, err)
		back, err := ExpWad(ln)
		require.NoError(t, err)
		require.True(t, relErr(back, x).Cmp(big.NewInt(1e6)) < 0, "exp(ln(%d)) within 1e-12: got %s", n, back)
	}
}

func TestPowWadExactIdentities(t *testing.T) {
	x := wadTimes(123456)

	out, err := PowWad(x, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, WAD(), out, "x^0 = 1 exactly")

	out, err = PowWad(x, WAD())
	require.NoError(t, err)
	require.Equal(t, x, out, "x^1 = x exactly")

	_, err = PowWad(big.NewInt(0), WAD())
	require.ErrorIs(t, err, ErrPowDomain)
	_, err = PowWad(big.NewInt(-5), WAD())
	require.ErrorIs(t, err, ErrPowDomain)
}

func TestPowWadAccuracy(t *testing.T) {
	// 4^0.5 = 2
	half := new(big.Int).Quo(WAD(), big.NewInt(2))
	out, err := PowWad(wadTimes(4), half)
	require.NoError(t, err)
	require.True(t, relErr(out, wadTimes(2)).Cmp(big.NewInt(1e6)) < 0, "4^0.5: got %s", out)

	// 10^3 = 1000
	out, err = PowWad(wadTimes(10), wadTimes(3))
	require.NoError(t, err)
	require.True(t, relErr(out, wadTimes(1000)).Cmp(big.NewInt(1e6)) < 0, "10^3: got %s", out)

	// 2^-1 = 0.5
	out, err = PowWad(wadTimes(2), wadTimes(-1))
	require.NoError(t, err)
	require.True(t, relErr(out, half).Cmp(big.NewInt(1e6)) < 0, "2^-1: got %s", out)
}

func TestMulDivRounding(t *testing.T) {
	three := big.NewInt(3)
	ten := big.NewInt(10)

	down, err := DivWadDown(ten, three)
	require.NoError(t, err)
	up, err := DivWadUp(ten, three)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), new(big.Int).Sub(up, down), "up rounds one unit above down on a remainder")

	exactDown, err := DivWadDown(ten, ten)
	require.NoError(t, err)
	exactUp, err := DivWadUp(ten, ten)
	require.NoError(t, err)
	require.Equal(t, exactDown, exactUp, "exact division rounds identically")

	_, err = DivWadDown(ten, big.NewInt(0))
	require.ErrorIs(t, err, ErrDivZero)

	require.Equal(t, wadTimes(6), MulWadDown(wadTimes(2), wadTimes(3)))
	require.Equal(t, big.NewInt(1), MulWadUp(big.NewInt(1), big.NewInt(1)), "mul up rounds fractional products to one")
	require.Zero(t, MulWadDown(big.NewInt(1), big.NewInt(1)).Sign(), "mul down truncates fractional products")
}
