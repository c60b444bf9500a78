package invoice

import (
	"fmt"
	"strings"
)

// Money is an amount in minor units of a currency. Integer cents keep the
// fold arithmetic exact; replay must never depend on float rounding.
type Money struct {
	Cents    int64  `json:"cents"`
	Currency string `json:"currency"`
}

// NewMoney creates an amount in the given ISO 4217 currency.
func NewMoney(cents int64, currency string) Money {
	return Money{Cents: cents, Currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Add returns the sum of two amounts in the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("cannot add %s to %s", other.Currency, m.Currency)
	}
	return Money{Cents: m.Cents + other.Cents, Currency: m.Currency}, nil
}

// IsZero reports whether the amount is unset.
func (m Money) IsZero() bool {
	return m.Cents == 0 && m.Currency == ""
}

// String formats the amount as "12.34 USD".
func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, m.Currency)
}

// LineItem is one billable line on an invoice. Discount and tax are carried
// in basis points so amounts derive from integer arithmetic.
type LineItem struct {
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	DiscountBps    int64  `json:"discount_bps,omitempty"`
	TaxBps         int64  `json:"tax_bps,omitempty"`
}

// Subtotal is quantity times unit price, before discount and tax.
func (li LineItem) Subtotal() int64 {
	return li.Quantity * li.UnitPriceCents
}

// DiscountAmount is the discount applied to the subtotal.
func (li LineItem) DiscountAmount() int64 {
	return li.Subtotal() * li.DiscountBps / 10000
}

// TaxAmount is the tax on the discounted subtotal.
func (li LineItem) TaxAmount() int64 {
	return (li.Subtotal() - li.DiscountAmount()) * li.TaxBps / 10000
}

// Total is the line amount after discount and tax.
func (li LineItem) Total() int64 {
	return li.Subtotal() - li.DiscountAmount() + li.TaxAmount()
}

// Validate checks the line item fields.
func (li LineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("line item description is required")
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("line item quantity must be positive")
	}
	if li.UnitPriceCents < 0 {
		return fmt.Errorf("line item unit price cannot be negative")
	}
	if li.DiscountBps < 0 || li.DiscountBps > 10000 {
		return fmt.Errorf("line item discount must be between 0 and 10000 basis points")
	}
	if li.TaxBps < 0 || li.TaxBps > 10000 {
		return fmt.Errorf("line item tax must be between 0 and 10000 basis points")
	}
	return nil
}
