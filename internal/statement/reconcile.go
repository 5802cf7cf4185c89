package statement

// Reconcile fills fields that can be derived from the ones present. A rule only
// fills a field that is absent, so detected values always win over derived ones.
// The input is not modified and Reconcile(Reconcile(f)) equals Reconcile(f).
func Reconcile(f Fields) Fields {
	out := f

	// Not clamped: an over-limit card has negative available credit
	if out.CreditLimit != nil && out.CurrentBalance != nil && out.AvailableCredit == nil {
		out.AvailableCredit = amountPtr(*out.CreditLimit - *out.CurrentBalance)
	}

	if out.CurrentBalance != nil && out.MinimumPayment == nil {
		out.MinimumPayment = amountPtr(defaultMinimumPayment(*out.CurrentBalance))
	}

	return out
}

// defaultMinimumPayment is 5% of the balance rounded half away from zero to whole
// units. It divides before rounding so balances near the int64 limit do not overflow.
func defaultMinimumPayment(balance Amount) Amount {
	q, r := balance/20, balance%20
	switch {
	case r >= 10:
		q++
	case r <= -10:
		q--
	}
	return q
}
