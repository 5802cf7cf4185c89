package card

import (
	"time"

	"github.com/zombor/cardscan/internal/statement"
)

// Card is a tracked credit card with the figures from its latest statement
type Card struct {
	ID              string           `json:"id"`
	BankName        string           `json:"bank_name"`
	LastFourDigits  string           `json:"last_four_digits"`
	CardType        string           `json:"card_type"` // visa, mastercard, amex, other
	CreditLimit     statement.Amount `json:"credit_limit"`
	CurrentBalance  statement.Amount `json:"current_balance"`
	AvailableCredit statement.Amount `json:"available_credit"`
	MinimumPayment  statement.Amount `json:"minimum_payment"`
	DueDate         *statement.Date  `json:"due_date,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Apply merges statement fields into the card. A present field overwrites the
// stored value; an absent field leaves it untouched. Reports whether anything changed.
func (c *Card) Apply(fields statement.Fields, now time.Time) bool {
	changed := false
	set := func(dst *statement.Amount, src *statement.Amount) {
		if src != nil {
			*dst = *src
			changed = true
		}
	}

	set(&c.CreditLimit, fields.CreditLimit)
	set(&c.CurrentBalance, fields.CurrentBalance)
	set(&c.AvailableCredit, fields.AvailableCredit)
	set(&c.MinimumPayment, fields.MinimumPayment)
	if fields.DueDate != nil {
		d := *fields.DueDate
		c.DueDate = &d
		changed = true
	}

	if changed {
		c.UpdatedAt = now
	}
	return changed
}

// ValidCardType reports whether t is a known card network
func ValidCardType(t string) bool {
	switch t {
	case "visa", "mastercard", "amex", "other":
		return true
	}
	return false
}
