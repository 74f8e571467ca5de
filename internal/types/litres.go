// README: Fuel quantity stored as integer millilitres.
package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidQuantity = errors.New("quantity must be a positive decimal number of litres")

// Millilitres keeps fuel volume exact; a litre is 1000 units.
type Millilitres int64

// ParseLitres parses a decimal litre string ("500", "12.5", "0.125") without floating point.
func ParseLitres(s string) (Millilitres, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, ErrInvalidQuantity
	}
	if len(frac) > 3 {
		return 0, fmt.Errorf("%w: at most 3 decimal places", ErrInvalidQuantity)
	}
	for len(frac) < 3 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > math.MaxInt64/1000-1 {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidQuantity)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, ErrInvalidQuantity
	}
	ml := Millilitres(w*1000 + f)
	if ml <= 0 {
		return 0, ErrInvalidQuantity
	}
	return ml, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (m Millilitres) String() string {
	return fmt.Sprintf("%d.%03d", int64(m)/1000, int64(m)%1000)
}
