package statement

import (
	"encoding/json"
	"fmt"
	"time"
)

// Amount is a monetary value in whole currency units
type Amount int64

// Date is a calendar date without time of day
type Date struct {
	time.Time
}

// NewDate returns the date for the given year, month and day in UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD)
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String returns the canonical ISO form
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD"
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FieldName identifies one financial datum
type FieldName string

const (
	FieldCreditLimit     FieldName = "creditLimit"
	FieldCurrentBalance  FieldName = "currentBalance"
	FieldAvailableCredit FieldName = "availableCredit"
	FieldMinimumPayment  FieldName = "minimumPayment"
	FieldDueDate         FieldName = "dueDate"
)

// Fields holds the values found on a statement. A nil field was not detected,
// which is different from a detected zero.
type Fields struct {
	CreditLimit     *Amount `json:"creditLimit,omitempty"`
	CurrentBalance  *Amount `json:"currentBalance,omitempty"`
	AvailableCredit *Amount `json:"availableCredit,omitempty"`
	MinimumPayment  *Amount `json:"minimumPayment,omitempty"`
	DueDate         *Date   `json:"dueDate,omitempty"`
}

// Present lists the fields that have a value, in a fixed order
func (f Fields) Present() []FieldName {
	var names []FieldName
	if f.CreditLimit != nil {
		names = append(names, FieldCreditLimit)
	}
	if f.CurrentBalance != nil {
		names = append(names, FieldCurrentBalance)
	}
	if f.AvailableCredit != nil {
		names = append(names, FieldAvailableCredit)
	}
	if f.MinimumPayment != nil {
		names = append(names, FieldMinimumPayment)
	}
	if f.DueDate != nil {
		names = append(names, FieldDueDate)
	}
	return names
}

// Empty reports whether nothing usable was found
func (f Fields) Empty() bool {
	return len(f.Present()) == 0
}

// Source tells whether a value was read from the statement or computed
type Source string

const (
	SourceDetected Source = "detected"
	SourceDerived  Source = "derived"
)

// Sources labels each present field of reconciled as detected (present in
// extracted) or derived
func Sources(extracted, reconciled Fields) map[FieldName]Source {
	detected := make(map[FieldName]bool)
	for _, name := range extracted.Present() {
		detected[name] = true
	}

	sources := make(map[FieldName]Source)
	for _, name := range reconciled.Present() {
		if detected[name] {
			sources[name] = SourceDetected
		} else {
			sources[name] = SourceDerived
		}
	}
	return sources
}

func amountPtr(v Amount) *Amount {
	return &v
}
