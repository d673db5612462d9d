package calc

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberUnmarshal(t *testing.T) {
	cases := []struct {
		in      string
		isFloat bool
		want    string
	}{
		{"7", false, "7"},
		{"-3", false, "-3"},
		{"0", false, "0"},
		{"3.5", true, "3.5"},
		{"7.0", true, "7.0"},
		{"-0.0", true, "-0.0"},
		{"1e3", true, "1000.0"},
		{"2E-7", true, "2e-07"},
		{"123456789012345678901234567890", false, "123456789012345678901234567890"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tc.in), &n))
			assert.Equal(t, tc.isFloat, n.IsFloat())
			assert.Equal(t, tc.want, n.String())
		})
	}
}

func TestNumberUnmarshalNull(t *testing.T) {
	n := Int(5)
	require.NoError(t, n.UnmarshalJSON([]byte("null")))
	assert.True(t, Int(5).Equal(n))
}

func TestNumberUnmarshalInvalid(t *testing.T) {
	for _, in := range []string{`"7"`, `true`, `[1]`, `{}`, ``} {
		var n Number
		assert.ErrorIs(t, n.UnmarshalJSON([]byte(in)), ErrNotNumber, in)
	}

	var n Number
	assert.ErrorIs(t, n.UnmarshalJSON([]byte("1e400")), ErrNotFinite)
}

func TestNumberUnmarshalDigitLimit(t *testing.T) {
	longest := strings.Repeat("9", MaxIntDigits)

	var n Number
	require.NoError(t, n.UnmarshalJSON([]byte(longest)))
	require.NoError(t, n.UnmarshalJSON([]byte("-"+longest)))
	assert.Equal(t, "-"+longest, n.String())

	err := n.UnmarshalJSON([]byte("1" + longest))
	assert.ErrorIs(t, err, ErrNotNumber)
	assert.Contains(t, err.Error(), "4301 digits")
	assert.ErrorIs(t, n.UnmarshalJSON([]byte(strings.Repeat("7", 3_000_000))), ErrNotNumber)
}

func TestNumberMarshal(t *testing.T) {
	cases := []struct {
		n    Number
		want string
	}{
		{Number{}, "0"},
		{Int(42), "42"},
		{Float(0), "0.0"},
		{Float(7), "7.0"},
		{Float(3.25), "3.25"},
		{Float(-1.5), "-1.5"},
		{Float(1e21), "1e+21"},
		{Float(1e16), "1e+16"},
		{Float(-2.5e17), "-2.5e+17"},
		{Float(9999999999999998), "9999999999999998.0"},
		{Float(1e15), "1000000000000000.0"},
		{Float(1e-7), "1e-07"},
		{Float(0.00001), "1e-05"},
		{Float(0.0001), "0.0001"},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(data))
	}
}

func TestNumberMarshalNotFinite(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := json.Marshal(Float(f))
		assert.Error(t, err)
		assert.False(t, Float(f).IsFinite())
	}
}

func TestNumberAdd(t *testing.T) {
	cases := []struct {
		name string
		a, b Number
		want Number
	}{
		{"ints", Int(3), Int(4), Int(7)},
		{"int float", Int(1), Float(2.5), Float(3.5)},
		{"float int", Float(2), Int(5), Float(7)},
		{"floats", Float(0.5), Float(0.25), Float(0.75)},
		{"zero values", Number{}, Number{}, Int(0)},
		{"zero float", Number{}, Float(0), Float(0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.Add(tc.b)
			assert.True(t, tc.want.Equal(got), "got %s, want %s", got, tc.want)
		})
	}
}

func TestNumberAddBig(t *testing.T) {
	maxInt := Int(math.MaxInt64)
	sum := maxInt.Add(Int(1))

	want, _ := new(big.Int).SetString("9223372036854775808", 10)
	assert.False(t, sum.IsFloat())
	assert.Equal(t, 0, sum.BigInt().Cmp(want))
}

func TestNumberAddOverflow(t *testing.T) {
	sum := Float(math.MaxFloat64).Add(Float(math.MaxFloat64))
	assert.False(t, sum.IsFinite())
}

func TestNumberAccessors(t *testing.T) {
	assert.Equal(t, 2.0, Int(2).Float64())
	assert.Equal(t, 0.0, Number{}.Float64())
	assert.Nil(t, Float(1).BigInt())
	assert.Equal(t, int64(0), Number{}.BigInt().Int64())

	v := big.NewInt(9)
	n := BigInt(v)
	v.SetInt64(1)
	assert.Equal(t, "9", n.String())

	assert.False(t, Int(1).Equal(Float(1)))
}
