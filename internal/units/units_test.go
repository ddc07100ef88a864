package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"1_000", 6, "1000000000"},
		{" 42 ", 0, "42"},
		{"0", 18, "0"},
	}

	for _, tc := range cases {
		got, err := ParseUnits(tc.amount, tc.decimals)
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.want, got.String(), tc.amount)
	}
}

func TestParseUnitsRejectsExcessPrecision(t *testing.T) {
	_, err := ParseUnits("0.0000001", 6)
	require.ErrorIs(t, err, ErrPrecision)
}

func TestParseUnitsRejectsNegative(t *testing.T) {
	_, err := ParseUnits("-2.25", 2)
	require.ErrorIs(t, err, ErrNegative)

	_, err = ParseGwei("-1")
	require.ErrorIs(t, err, ErrNegative)
}

func TestParseUnitsRejectsGarbage(t *testing.T) {
	_, err := ParseUnits("abc", 18)
	require.Error(t, err)

	_, err = ParseUnits("", 18)
	require.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	v, ok := new(big.Int).SetString("1500000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, "1.5", FormatEther(v))
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 6))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
}

func TestParseGwei(t *testing.T) {
	v, err := ParseGwei("2.5")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(2_500_000_000), v)
}

func TestRescale(t *testing.T) {
	assert.Equal(t, "1000000000000000000", Rescale(big.NewInt(1_000_000), 6, 18).String())
	assert.Equal(t, "1", Rescale(big.NewInt(1_999_999_999_999), 18, 6).String())
	assert.Equal(t, "0", Rescale(nil, 6, 18).String())
}
