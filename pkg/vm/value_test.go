package vm

import "testing"

// TestBoxIdempotent: boxing converts raw kinds exactly once; a second
// application is the identity, and reference kinds never change.
func TestBoxIdempotent(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want Kind
	}{
		{"raw number", RawNumber(3), KindNumber},
		{"raw bool", RawBool(true), KindBool},
		{"boxed number", Number(3), KindNumber},
		{"string", String("s"), KindString},
		{"null", Null, KindNull},
		{"undefined", Undefined, KindUndefined},
		{"array", ArrayVal(&Array{}), KindArray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			once := tt.v.Box()
			if once.Kind() != tt.want {
				t.Fatalf("Box() kind %s, want %s", once.Kind(), tt.want)
			}
			twice := once.Box()
			if twice != once {
				t.Fatalf("Box() not idempotent: %v then %v", once, twice)
			}
		})
	}
}

func TestBoxPreservesPayload(t *testing.T) {
	if got := RawNumber(2.5).Box().Num(); got != 2.5 {
		t.Fatalf("boxed number payload %v", got)
	}
	if !RawBool(true).Box().BoolVal() {
		t.Fatal("boxed bool payload lost")
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"zero", Number(0), false},
		{"nan", RawNumber(nan()), false},
		{"one", Number(1), true},
		{"empty string", String(""), false},
		{"string", String("x"), true},
		{"null", Null, false},
		{"undefined", Undefined, false},
		{"false", Bool(false), false},
		{"object", ObjectVal(NewPlain()), true},
		{"empty array", ArrayVal(&Array{}), true},
	}
	for _, tt := range tests {
		if got := tt.v.Truthy(); got != tt.want {
			t.Errorf("%s: Truthy() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{42, "42"},
		{-1, "-1"},
		{2.5, "2.5"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatNumber(nan()); got != "NaN" {
		t.Errorf("NaN rendered %q", got)
	}
}
