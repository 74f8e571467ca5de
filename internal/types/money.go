// README: Common money value object used across modules (integer minor units).
package types

import "fmt"

const DefaultCurrency = "ZAR"

// Money is an amount in minor currency units (cents).
type Money struct {
	Amount   int64
	Currency string
}

func Cents(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}

func (m Money) Add(o Money) Money {
	cur := m.Currency
	if cur == "" {
		cur = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: cur}
}

func (m Money) String() string {
	sign := ""
	a := m.Amount
	if a < 0 {
		sign = "-"
		a = -a
	}
	return fmt.Sprintf("%s%s %d.%02d", sign, m.Currency, a/100, a%100)
}
