package ledger

import (
	"github.com/shopspring/decimal"
)

// Balance is the derived money state of an appointment.
type Balance struct {
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	BalancePaid      bool            `json:"balance_paid"`
}

// ComputeBalance derives the balance of an appointment from its total, its
// deposit and the amounts of its recorded payments.
//
// Once any payment exists the deposit field is ignored, because the deposit
// is itself recorded as a payment. An unset total counts as zero, so an
// appointment without a price is always paid.
func ComputeBalance(total Amount, deposit decimal.Decimal, payments []decimal.Decimal) Balance {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p)
	}

	var remaining decimal.Decimal
	if paid.IsPositive() {
		remaining = total.OrZero().Sub(paid)
	} else {
		remaining = total.OrZero().Sub(deposit)
	}
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	b := Balance{RemainingBalance: remaining, BalancePaid: !remaining.IsPositive()}
	switch {
	case b.BalancePaid:
		b.PaymentStatus = PaymentStatusPaid
	case deposit.IsPositive() || paid.IsPositive():
		b.PaymentStatus = PaymentStatusPartial
	default:
		b.PaymentStatus = PaymentStatusUnpaid
	}
	return b
}

// Amounts extracts the payment amounts ComputeBalance works on.
func Amounts(payments []*Payment) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(payments))
	for _, p := range payments {
		out = append(out, p.Amount)
	}
	return out
}
