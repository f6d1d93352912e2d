package ledger

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/holiman/uint256"
)

// WeiPerEther is the exponent between wei and ether.
const WeiPerEther = 18

// Amount is a non-negative quantity of wei.
// The zero value is zero wei and ready to use.
type Amount struct {
	v uint256.Int
}

var (
	etherScale = apd.New(1, WeiPerEther)

	// decimalCtx has enough precision for any uint256 value (78 digits).
	decimalCtx = apd.BaseContext.WithPrecision(100)
)

// Wei returns an Amount of n wei.
func Wei(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseWei parses a base-10 integer wei string.
func ParseWei(s string) (Amount, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("parse wei %q: %w", s, err)
	}
	return Amount{v: *v}, nil
}

// ParseEther parses a decimal ether string such as "0.1" into wei.
// Values that would need fractional wei are rejected.
func ParseEther(s string) (Amount, error) {
	d, _, err := apd.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("parse ether %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("parse ether %q: not a finite number", s)
	}
	if d.Negative {
		if !d.IsZero() {
			return Amount{}, fmt.Errorf("parse ether %q: negative amount", s)
		}
		d.Negative = false
	}

	var wei apd.Decimal
	if _, err := decimalCtx.Mul(&wei, d, etherScale); err != nil {
		return Amount{}, fmt.Errorf("parse ether %q: %w", s, err)
	}

	var whole apd.Decimal
	cond, err := decimalCtx.Quantize(&whole, &wei, 0)
	if err != nil {
		return Amount{}, fmt.Errorf("parse ether %q: %w", s, err)
	}
	if cond.Inexact() {
		return Amount{}, fmt.Errorf("parse ether %q: more than %d decimal places", s, WeiPerEther)
	}

	return ParseWei(whole.Text('f'))
}

// MustParseEther is like ParseEther but panics on error.
// Use only in tests or with constant inputs.
func MustParseEther(s string) Amount {
	a, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is zero wei.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// Add returns a+b. ok is false if the sum overflows 256 bits.
func (a Amount) Add(b Amount) (sum Amount, ok bool) {
	_, overflow := sum.v.AddOverflow(&a.v, &b.v)
	return sum, !overflow
}

// Sub returns a-b. ok is false if b > a.
func (a Amount) Sub(b Amount) (diff Amount, ok bool) {
	if a.Cmp(b) < 0 {
		return Amount{}, false
	}
	diff.v.Sub(&a.v, &b.v)
	return diff, true
}

// String returns the amount in wei, base 10.
func (a Amount) String() string {
	return a.v.Dec()
}

// Ether returns the amount as a decimal ether string with trailing zeros
// removed ("0.1", "2", "0.000000000000000001").
func (a Amount) Ether() string {
	if a.IsZero() {
		return "0"
	}
	d, _, err := apd.NewFromString(a.v.Dec())
	if err != nil {
		return a.v.Dec() + " wei"
	}
	d.Exponent -= WeiPerEther
	s := d.Text('f')
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// MarshalText encodes the amount as base-10 wei.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes base-10 wei.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseWei(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds amounts, reporting false on overflow.
func Sum(amounts ...Amount) (Amount, bool) {
	var total Amount
	for _, a := range amounts {
		var ok bool
		total, ok = total.Add(a)
		if !ok {
			return Amount{}, false
		}
	}
	return total, true
}
