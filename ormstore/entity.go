package ormstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// valueKind discriminates the union inside Value.
type valueKind int

const (
	kindString valueKind = iota
	kindList
	kindBool
)

// Value is a single attribute value: a string, a list of strings, or a bool.
// The zero Value is the empty string.
type Value struct {
	kind valueKind
	str  string
	list []string
	b    bool
}

// String creates a string Value.
func String(s string) Value {
	return Value{kind: kindString, str: s}
}

// List creates a string-list Value. The slice is copied.
func List(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{kind: kindList, list: cp}
}

// Bool creates a boolean Value.
func Bool(b bool) Value {
	return Value{kind: kindBool, b: b}
}

// Str returns the string form and whether the value is a string.
func (v Value) Str() (string, bool) {
	return v.str, v.kind == kindString
}

// Strings returns the list form and whether the value is a list.
func (v Value) Strings() ([]string, bool) {
	if v.kind != kindList {
		return nil, false
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// Bool returns the boolean form and whether the value is a bool.
func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == kindBool
}

// Scalar reports whether the value participates in tagging, and its
// tag representation. Lists are never tagged.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case kindString:
		return v.str, true
	case kindBool:
		if v.b {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case kindString:
		return v.str == o.str
	case kindBool:
		return v.b == o.b
	default:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindList:
		return json.Marshal(v.list)
	case kindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON decodes a JSON string, array of strings, or bool.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case bool:
		*v = Bool(t)
	case []any:
		items := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("ormstore: list attribute contains non-string element %v", it)
			}
			items = append(items, s)
		}
		*v = List(items...)
	default:
		return fmt.Errorf("ormstore: unsupported attribute value %v", raw)
	}
	return nil
}

// Attrs is the attribute bag of an entity, keyed by attribute name.
type Attrs map[string]Value

// GetString returns the named string attribute, or "" when absent or not a
// string.
func (a Attrs) GetString(name string) string {
	s, _ := a[name].Str()
	return s
}

// GetStrings returns the named list attribute, or nil.
func (a Attrs) GetStrings(name string) []string {
	l, _ := a[name].Strings()
	return l
}

// GetBool returns the named bool attribute, or false.
func (a Attrs) GetBool(name string) bool {
	b, _ := a[name].Bool()
	return b
}

// Clone returns a deep copy of the attribute bag.
func (a Attrs) Clone() Attrs {
	cp := make(Attrs, len(a))
	for k, v := range a {
		if v.kind == kindList {
			v = List(v.list...)
		}
		cp[k] = v
	}
	return cp
}

// Merge copies every attribute of other into a, overwriting existing names.
func (a Attrs) Merge(other Attrs) {
	for k, v := range other {
		a[k] = v
	}
}

// Without returns a copy of the bag with the given attribute names removed.
func (a Attrs) Without(names ...string) Attrs {
	cp := a.Clone()
	for _, n := range names {
		delete(cp, n)
	}
	return cp
}

// Equal reports whether two attribute bags hold the same names and values.
func (a Attrs) Equal(other Attrs) bool {
	if len(a) != len(other) {
		return false
	}
	for k, v := range a {
		ov, ok := other[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Entity is a persistent record: an opaque ID, an attribute bag, and an
// optional expiration deadline. A zero ExpiresAt means the entity never
// expires. Identity is by ID within a kind.
type Entity struct {
	ID        string
	Attrs     Attrs
	ExpiresAt time.Time
}

// Expired reports whether the entity's deadline has passed at the given
// instant. Entities without a deadline never expire.
func (e *Entity) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
