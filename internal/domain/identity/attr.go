package identity

import "encoding/json"

// AttrValue is a profile attribute value. Values are either a single scalar or
// a small ordered set; the multi flag is carried by the attribute declaration,
// not guessed from the data.
type AttrValue struct {
	values []string
	multi  bool
}

// NewScalarAttr creates a scalar attribute value
func NewScalarAttr(value string) AttrValue {
	return AttrValue{values: []string{value}}
}

// NewMultiAttr creates a multi-valued attribute value preserving order
func NewMultiAttr(values ...string) AttrValue {
	vs := make([]string, len(values))
	copy(vs, values)
	return AttrValue{values: vs, multi: true}
}

// IsMulti reports whether the value was declared multi-valued
func (v AttrValue) IsMulti() bool {
	return v.multi
}

// IsEmpty reports whether the value carries no usable content
func (v AttrValue) IsEmpty() bool {
	for _, s := range v.values {
		if s != "" {
			return false
		}
	}
	return true
}

// Scalar returns the single value of a scalar attribute, or the first value of
// a multi-valued one.
func (v AttrValue) Scalar() string {
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// Values returns a copy of all values
func (v AttrValue) Values() []string {
	vs := make([]string, len(v.values))
	copy(vs, v.values)
	return vs
}

// Contains reports whether the value set contains s
func (v AttrValue) Contains(s string) bool {
	for _, val := range v.values {
		if val == s {
			return true
		}
	}
	return false
}

// Equal reports full equality of the two value sets, order included
func (v AttrValue) Equal(other AttrValue) bool {
	if len(v.values) != len(other.values) {
		return false
	}
	for i, s := range v.values {
		if other.values[i] != s {
			return false
		}
	}
	return true
}

type attrValueJSON struct {
	Values []string `json:"values"`
	Multi  bool     `json:"multi,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (v AttrValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(attrValueJSON{Values: v.values, Multi: v.multi})
}

// UnmarshalJSON implements json.Unmarshaler
func (v *AttrValue) UnmarshalJSON(data []byte) error {
	var raw attrValueJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.values = raw.Values
	v.multi = raw.Multi
	return nil
}

// Overlaps reports whether the two value sets share at least one value
func (v AttrValue) Overlaps(other AttrValue) bool {
	for _, s := range other.values {
		if v.Contains(s) {
			return true
		}
	}
	return false
}
