package meta

import "slices"

// Value is a sealed interface over the types a side-table entry may hold.
// Only String, Int, Float, StringList, IntList, and FloatList implement it.
type Value interface {
	metaValue() // Sealed - only these types implement it
}

// String holds a text value.
type String string

func (String) metaValue() {}

// Int holds an integer value. Always int64.
type Int int64

func (Int) metaValue() {}

// Float holds a numeric value.
type Float float64

func (Float) metaValue() {}

// StringList holds an ordered list of text values.
type StringList []string

func (StringList) metaValue() {}

// IntList holds an ordered list of integer values.
type IntList []int64

func (IntList) metaValue() {}

// FloatList holds an ordered list of numeric values.
type FloatList []float64

func (FloatList) metaValue() {}

// CloneValue returns a deep copy of v. List values get their own backing
// array; scalar values are returned as-is.
func CloneValue(v Value) Value {
	switch val := v.(type) {
	case StringList:
		return StringList(slices.Clone(val))
	case IntList:
		return IntList(slices.Clone(val))
	case FloatList:
		return FloatList(slices.Clone(val))
	default:
		return v
	}
}

// EqualValues reports whether two values hold the same kind and content.
func EqualValues(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case StringList:
		bv, ok := b.(StringList)
		return ok && slices.Equal(av, bv)
	case IntList:
		bv, ok := b.(IntList)
		return ok && slices.Equal(av, bv)
	case FloatList:
		bv, ok := b.(FloatList)
		return ok && slices.Equal(av, bv)
	default:
		return false
	}
}
