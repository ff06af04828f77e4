package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user-entered decimal string to a positive amount
// rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
//	ParseAmount("0")      -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseBalance is ParseAmount for balances, which may be zero or negative.
func ParseBalance(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func parseUnsigned(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if intPart, _, ok := strings.Cut(s, ","); ok && strings.Contains(intPart, ".") {
		// "1.200,50": dots group thousands when a comma marks the cents
		groups := strings.Split(intPart, ".")
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return decimal.Zero, ErrInvalidAmount
			}
		}
		if groups[0] == "" {
			return decimal.Zero, ErrInvalidAmount
		}
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return RoundCents(d), nil
}

// RoundCents rounds half away from zero on the cent boundary, which is
// round(amount*100)/100 for positive amounts.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// InstallmentAmount is the charge for one cycle of a recurring bill.
func InstallmentAmount(total decimal.Decimal, count int, subscription bool) decimal.Decimal {
	if subscription || count <= 0 {
		return RoundCents(total)
	}
	return RoundCents(total.Div(decimal.NewFromInt(int64(count))))
}

// FormatBRL renders an amount as Brazilian reais, e.g. "R$ 1.234,56".
func FormatBRL(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	cents := RoundCents(d).Mul(hundred).IntPart()
	units, frac := cents/100, cents%100

	digits := []byte(decimal.NewFromInt(units).String())
	var b strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteByte(c)
	}
	return "R$ " + sign + b.String() + "," + twoDigits(frac)
}

func twoDigits(n int64) string {
	if n < 10 {
		return "0" + decimal.NewFromInt(n).String()
	}
	return decimal.NewFromInt(n).String()
}
