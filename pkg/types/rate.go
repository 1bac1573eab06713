package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var jsonNull = []byte("null")

// Rate is a tariff in PKR per kWh that may be undefined. An undefined rate
// means no tier applies to the usage/protection combination and must never
// be treated as zero.
type Rate struct {
	pkrPerKWH float64
	defined   bool
}

// RateOf returns a defined rate.
func RateOf(pkrPerKWH float64) Rate {
	return Rate{pkrPerKWH: pkrPerKWH, defined: true}
}

// UndefinedRate returns a rate with no value.
func UndefinedRate() Rate {
	return Rate{}
}

// Value returns the rate and whether it is defined.
func (r Rate) Value() (float64, bool) {
	return r.pkrPerKWH, r.defined
}

// Defined reports whether the rate has a value.
func (r Rate) Defined() bool {
	return r.defined
}

func (r Rate) String() string {
	if !r.defined {
		return "undefined"
	}
	return fmt.Sprintf("%.2f PKR/kWh", r.pkrPerKWH)
}

// MarshalJSON encodes an undefined rate as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.defined {
		return jsonNull, nil
	}
	return json.Marshal(r.pkrPerKWH)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Rate) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*r = Rate{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid rate: %w", err)
	}
	*r = RateOf(v)
	return nil
}

// Amount is a PKR amount derived from a Rate. It is undefined whenever the
// rate it was computed from is undefined.
type Amount struct {
	pkr     float64
	defined bool
}

// AmountOf returns a defined amount.
func AmountOf(pkr float64) Amount {
	return Amount{pkr: pkr, defined: true}
}

// UndefinedAmount returns an amount with no value.
func UndefinedAmount() Amount {
	return Amount{}
}

// Value returns the amount and whether it is defined.
func (a Amount) Value() (float64, bool) {
	return a.pkr, a.defined
}

// Defined reports whether the amount has a value.
func (a Amount) Defined() bool {
	return a.defined
}

// Add sums two amounts. The result is undefined if either side is.
func (a Amount) Add(o Amount) Amount {
	if !a.defined || !o.defined {
		return Amount{}
	}
	return AmountOf(a.pkr + o.pkr)
}

// MarshalJSON encodes an undefined amount as null.
func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.defined {
		return jsonNull, nil
	}
	return json.Marshal(a.pkr)
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), jsonNull) {
		*a = Amount{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	*a = AmountOf(v)
	return nil
}
