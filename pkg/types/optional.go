package types

import (
	"encoding/json"
	"strconv"
)

// OptFloat is a float that may be absent. Vendor payloads frequently omit
// fields and the "value unavailable this cycle" case must stay distinct from
// a legitimate zero reading, so absence is modeled explicitly rather than
// with an in-band sentinel.
type OptFloat struct {
	value   float64
	present bool
}

// Some returns a present OptFloat.
func Some(v float64) OptFloat {
	return OptFloat{value: v, present: true}
}

// None returns an absent OptFloat.
func None() OptFloat {
	return OptFloat{}
}

// Present reports whether a value is set.
func (o OptFloat) Present() bool {
	return o.present
}

// Value returns the value and whether it is present.
func (o OptFloat) Value() (float64, bool) {
	return o.value, o.present
}

// Or returns the value, or fallback when absent.
func (o OptFloat) Or(fallback float64) float64 {
	if !o.present {
		return fallback
	}
	return o.value
}

// Map returns a present OptFloat with f applied, or None when absent.
func (o OptFloat) Map(f func(float64) float64) OptFloat {
	if !o.present {
		return o
	}
	return Some(f(o.value))
}

// MarshalJSON encodes an absent value as null.
func (o OptFloat) MarshalJSON() ([]byte, error) {
	if !o.present {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as absent.
func (o *OptFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

// String implements fmt.Stringer for logging.
func (o OptFloat) String() string {
	if !o.present {
		return "absent"
	}
	return strconv.FormatFloat(o.value, 'f', -1, 64)
}
