package calc

import (
	"bytes"
	"math"
	"math/big"
	"strconv"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotNumber is returned when a JSON value other than a number is decoded into a Number.
	ErrNotNumber = errors.New("[HELLO-ADD] value is not a number")

	// ErrNotFinite is returned when a float cannot be represented in JSON.
	ErrNotFinite = errors.New("[HELLO-ADD] number is not finite")

	// Errors lists the error classes of this package, see helloadd.WithErrorClasses.
	Errors = []error{ErrNotNumber, ErrNotFinite}
)

// MaxIntDigits is the longest integer literal accepted.
const MaxIntDigits = 4300

// Number is a JSON number that keeps track of whether it was written as an
// integer or as a float. Integers are arbitrary precision.
// The zero value is the integer 0.
type Number struct {
	i       *big.Int
	f       float64
	isFloat bool
}

// Int returns an integer Number.
func Int(v int64) Number {
	return Number{i: big.NewInt(v)}
}

// BigInt returns an integer Number holding a copy of v.
func BigInt(v *big.Int) Number {
	return Number{i: new(big.Int).Set(v)}
}

// Float returns a float Number.
func Float(v float64) Number {
	return Number{f: v, isFloat: true}
}

// IsFloat reports whether n is a float.
func (n Number) IsFloat() bool {
	return n.isFloat
}

// IsFinite reports whether n can be encoded as JSON. Integers always can.
func (n Number) IsFinite() bool {
	return !n.isFloat || !(math.IsInf(n.f, 0) || math.IsNaN(n.f))
}

// Float64 returns n as a float64, rounding large integers.
func (n Number) Float64() float64 {
	if n.isFloat {
		return n.f
	}
	if n.i == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(n.i).Float64()
	return f
}

// BigInt returns a copy of the integer value; nil for floats.
func (n Number) BigInt() *big.Int {
	if n.isFloat {
		return nil
	}
	if n.i == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.i)
}

// Add returns n + m. Two integers add exactly; if either operand is a float
// the sum is a float.
func (n Number) Add(m Number) Number {
	if n.isFloat || m.isFloat {
		return Float(n.Float64() + m.Float64())
	}
	return Number{i: new(big.Int).Add(n.BigInt(), m.BigInt())}
}

// Equal reports whether n and m have the same kind and value.
func (n Number) Equal(m Number) bool {
	if n.isFloat != m.isFloat {
		return false
	}
	if n.isFloat {
		return n.f == m.f
	}
	return n.BigInt().Cmp(m.BigInt()) == 0
}

// String returns the JSON form of n.
func (n Number) String() string {
	return string(n.appendJSON(nil))
}

// UnmarshalJSON decodes a JSON number. Literals containing a fraction or an
// exponent become floats, everything else an integer. null leaves n untouched.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	if len(data) == 0 || !(data[0] == '-' || (data[0] >= '0' && data[0] <= '9')) {
		return errors.Wrapf(ErrNotNumber, "%.32s", data)
	}

	if bytes.ContainsAny(data, ".eE") {
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return errors.Wrapf(ErrNotFinite, "%.32s", data)
		}
		*n = Float(f)
		return nil
	}

	if digits := len(bytes.TrimPrefix(data, []byte("-"))); digits > MaxIntDigits {
		return errors.Wrapf(ErrNotNumber, "integer of %d digits exceeds the limit of %d", digits, MaxIntDigits)
	}

	i, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return errors.Wrapf(ErrNotNumber, "%.32s", data)
	}
	*n = Number{i: i}
	return nil
}

// MarshalJSON encodes n. Floats with an integral value keep a trailing ".0"
// so they stay distinguishable from integers.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.IsFinite() {
		return nil, errors.Wrapf(ErrNotFinite, "%v", n.f)
	}
	return n.appendJSON(nil), nil
}

func (n Number) appendJSON(b []byte) []byte {
	if !n.isFloat {
		if n.i == nil {
			return append(b, '0')
		}
		return n.i.Append(b, 10)
	}

	if !n.IsFinite() {
		return strconv.AppendFloat(b, n.f, 'g', -1, 64)
	}

	// Exponent form below 1e-4 and from 1e16 on, with at least two exponent
	// digits: 1e-05, 1e+16.
	start := len(b)
	if abs := math.Abs(n.f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.AppendFloat(b, n.f, 'e', -1, 64)
	}
	b = strconv.AppendFloat(b, n.f, 'f', -1, 64)
	if !bytes.ContainsAny(b[start:], ".") {
		b = append(b, '.', '0')
	}
	return b
}
