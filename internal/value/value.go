package value

import "strconv"

// Kind discriminates the variants a field value can take. Result rows carry
// dynamically typed values; the serializer switches exhaustively on Kind.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindOther
)

// Value is a small tagged union for field and sort-key values. The zero
// Value is Null.
type Value struct {
	kind  Kind
	num   float64
	str   string
	other interface{}
}

// Null returns the null value.
func Null() Value {
	return Value{}
}

// Number wraps a float64.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// String wraps a string.
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Other wraps a value that is neither numeric nor textual (arrays, maps,
// booleans from ingested documents). Such values pass through generic
// serialization but are not meaningful sort keys.
func Other(v interface{}) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindOther, other: v}
}

// From converts an arbitrary ingested value into a Value, normalizing the
// numeric types JSON and msgpack decoders produce.
func From(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	default:
		return Other(v)
	}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) Float() float64 { return v.num }
func (v Value) Str() string    { return v.str }

// Interface returns the value as a plain Go value for generic reply
// conversion.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindOther:
		return v.other
	default:
		return nil
	}
}

// Less orders two values for sorting: null < number < string < other,
// numbers by magnitude, strings lexically. Other values compare equal.
func Less(a, b Value) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	switch a.kind {
	case KindNumber:
		return a.num < b.num
	case KindString:
		return a.str < b.str
	default:
		return false
	}
}

// FormatNumber renders a float the way numeric sort keys travel on the wire:
// a fixed 17-significant-digit decimal, enough to round-trip any double.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', 17, 64)
}
