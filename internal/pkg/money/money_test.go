package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	require.True(t, decimal.NewFromInt(5000).Equal(Percent(decimal.NewFromInt(10000), decimal.NewFromInt(50))))
	// 333.33 * 10% = 33.333 -> 33.33
	require.Equal(t, "33.33", Percent(decimal.RequireFromString("333.33"), decimal.NewFromInt(10)).String())
	// 0.125 -> 0.13
	require.Equal(t, "0.13", Percent(decimal.RequireFromString("1.25"), decimal.NewFromInt(10)).String())
}

func TestMin(t *testing.T) {
	require.True(t, decimal.NewFromInt(1).Equal(Min(decimal.NewFromInt(1), decimal.NewFromInt(2))))
	require.True(t, decimal.NewFromInt(1).Equal(Min(decimal.NewFromInt(2), decimal.NewFromInt(1))))
}

func TestFormatINR(t *testing.T) {
	cases := map[string]string{
		"0":         "Rs 0",
		"999":       "Rs 999",
		"5000":      "Rs 5,000",
		"100000":    "Rs 1,00,000",
		"12345678":  "Rs 1,23,45,678",
		"1234.5":    "Rs 1,234.5",
		"-25000.75": "Rs -25,000.75",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatINR(decimal.RequireFromString(in)), "輸入 %s", in)
	}
}
