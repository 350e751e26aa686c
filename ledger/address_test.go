package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindAddress_Deterministic(t *testing.T) {
	owner := Address{1, 2, 3}

	a1, b1, err := FindAddress(DefaultProgramID, owner)
	require.NoError(t, err)
	a2, b2, err := FindAddress(DefaultProgramID, owner)
	require.NoError(t, err)

	require.Equal(t, a1, a2)
	require.Equal(t, b1, b2)
	require.False(t, onCurve(a1), "derived address must be off-curve")

	derived, err := DeriveAddress(DefaultProgramID, owner, b1)
	require.NoError(t, err)
	require.Equal(t, a1, derived)
}

func TestFindAddress_CanonicalBumpIsHighest(t *testing.T) {
	owner := Address{7}
	_, bump, err := FindAddress(DefaultProgramID, owner)
	require.NoError(t, err)

	for b := 255; b > int(bump); b-- {
		_, err := DeriveAddress(DefaultProgramID, owner, uint8(b))
		require.ErrorIs(t, err, ErrAddressOnCurve, "bump %d should not be viable", b)
	}
}

func TestDeriveAddress_SomeBumpsAreOnCurve(t *testing.T) {
	owner := Address{42}
	var onCurveCount, offCurveCount int
	for b := 0; b <= 255; b++ {
		if _, err := DeriveAddress(DefaultProgramID, owner, uint8(b)); err != nil {
			require.ErrorIs(t, err, ErrAddressOnCurve)
			onCurveCount++
		} else {
			offCurveCount++
		}
	}
	require.NotZero(t, onCurveCount)
	require.NotZero(t, offCurveCount)
}

func TestFindAddress_SeparatesOwnersAndPrograms(t *testing.T) {
	a, _, err := FindAddress(DefaultProgramID, Address{1})
	require.NoError(t, err)
	b, _, err := FindAddress(DefaultProgramID, Address{2})
	require.NoError(t, err)
	c, _, err := FindAddress(Address{0xFF}, Address{1})
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NotEqual(t, a, c)
}

func TestParseAddress(t *testing.T) {
	a := Address{0x10, 0x20, 0x30}
	got, err := ParseAddress(a.String())
	require.NoError(t, err)
	require.Equal(t, a, got)

	_, err = ParseAddress("0OIl")
	require.Error(t, err)

	_, err = ParseAddress("3mJr7AoUXx2Wqd")
	require.Error(t, err, "short address must be rejected")

	require.Equal(t, Address{}, MustParseAddress("11111111111111111111111111111111"))
}
