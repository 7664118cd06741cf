package value

import (
	"strconv"
	"testing"
)

func TestFromNormalizesNumerics(t *testing.T) {
	inputs := []interface{}{int(7), int32(7), int64(7), float32(7), float64(7), uint64(7)}
	for _, in := range inputs {
		v := From(in)
		if v.Kind() != KindNumber {
			t.Fatalf("From(%T) kind = %v, want KindNumber", in, v.Kind())
		}
		if v.Float() != 7 {
			t.Fatalf("From(%T) = %v, want 7", in, v.Float())
		}
	}
}

func TestFromStringsAndNull(t *testing.T) {
	if From("hello").Kind() != KindString {
		t.Fatal("expected string kind")
	}
	if From([]byte("hello")).Str() != "hello" {
		t.Fatal("expected byte slice to convert to string")
	}
	if !From(nil).IsNull() {
		t.Fatal("expected nil to convert to null")
	}
	if From(true).Kind() != KindOther {
		t.Fatal("expected bool to convert to other")
	}
}

func TestLessOrdering(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null before number", Null(), Number(0), true},
		{"number before string", Number(1e9), String(""), true},
		{"string before other", String("zzz"), Other(true), true},
		{"numbers by magnitude", Number(2), Number(10), true},
		{"strings lexically", String("apple"), String("banana"), true},
		{"equal numbers", Number(3), Number(3), false},
		{"other values equal", Other(true), Other(false), false},
	}
	for _, tt := range tests {
		if got := Less(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: Less = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFormatNumberRoundTrips(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.1, 3.141592653589793, 1e300, -2.5e-10} {
		s := FormatNumber(f)
		back, err := strconv.ParseFloat(s, 64)
		if err != nil {
			t.Fatalf("ParseFloat(%q): %v", s, err)
		}
		if back != f {
			t.Fatalf("FormatNumber(%v) = %q does not round-trip (got %v)", f, s, back)
		}
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Fatal("zero Value must be null")
	}
	if v.Interface() != nil {
		t.Fatal("null Interface() must be nil")
	}
}
