package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{"12,345", "12.35", true},
		{" 2.50 ", "2.5", true},
		{"1.200,50", "1200.5", true},
		{"1.234.567,89", "1234567.89", true},
		{"1.20,50", "", false},
		{".200,50", "", false},
		{"1.200,5,0", "", false},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{".", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseBalance(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"0", "0"},
		{"-150,5", "-150.5"},
		{"-1.200,50", "-1200.5"},
		{"1000", "1000"},
	}
	for _, tc := range cases {
		got, err := ParseBalance(tc.in)
		if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
			t.Errorf("ParseBalance(%q) = %s, %v, want %s", tc.in, got, err, tc.out)
		}
	}
}

func TestInstallmentAmount(t *testing.T) {
	cases := []struct {
		name  string
		total string
		count int
		sub   bool
		want  string
	}{
		{"thirds round down", "100", 3, false, "33.33"},
		{"thirds round up", "200", 3, false, "66.67"},
		{"half cent rounds up", "0.05", 2, false, "0.03"},
		{"subscription charges total", "39.90", 0, true, "39.9"},
		{"subscription ignores count", "39.90", 12, true, "39.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InstallmentAmount(decimal.RequireFromString(tc.total), tc.count, tc.sub)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("InstallmentAmount() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFormatBRL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "R$ 0,00"},
		{"12.5", "R$ 12,50"},
		{"1234.56", "R$ 1.234,56"},
		{"1000000", "R$ 1.000.000,00"},
		{"-42.1", "R$ -42,10"},
	}
	for _, tc := range cases {
		if got := FormatBRL(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatBRL(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
