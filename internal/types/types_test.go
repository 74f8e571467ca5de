package types

import (
	"errors"
	"testing"
)

func TestParseLitres(t *testing.T) {
	cases := []struct {
		in      string
		want    Millilitres
		wantErr bool
	}{
		{"500", 500000, false},
		{"12.5", 12500, false},
		{"0.125", 125, false},
		{".5", 500, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"1.2345", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"+3", 0, true},
		{"1.-5", 0, true},
		{"1.+5", 0, true},
		{"1. 5", 0, true},
		{"1.", 1000, false},
		{".", 0, true},
		{"1..5", 0, true},
		{"18446744073709552", 0, true},
		{"9223372036854775", 0, true},
		{"9223372036854774.807", 9223372036854774807, false},
	}
	for _, tc := range cases {
		got, err := ParseLitres(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidQuantity) {
				t.Errorf("ParseLitres(%q) err = %v, want ErrInvalidQuantity", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLitres(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLitres(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	m := Cents(1107050)
	if got := m.String(); got != "ZAR 11070.50" {
		t.Fatalf("String() = %q", got)
	}
	if got := Cents(-5).String(); got != "-ZAR 0.05" {
		t.Fatalf("String() = %q", got)
	}
}
