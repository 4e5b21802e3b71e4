package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(ss))
	for _, s := range ss {
		out = append(out, dec(s))
	}
	return out
}

func TestComputeBalance(t *testing.T) {
	tests := []struct {
		name      string
		total     Amount
		deposit   string
		payments  []decimal.Decimal
		remaining string
		status    PaymentStatus
	}{
		{"no payments no deposit", Some(dec("500")), "0", nil, "500", PaymentStatusUnpaid},
		{"no payments with deposit", Some(dec("1000")), "200", nil, "800", PaymentStatusPartial},
		{"deposit recorded as payment", Some(dec("1000")), "200", decs("200"), "800", PaymentStatusPartial},
		{"payments supersede deposit", Some(dec("1000")), "200", decs("100"), "900", PaymentStatusPartial},
		{"fully paid", Some(dec("1000")), "200", decs("200", "800"), "0", PaymentStatusPaid},
		{"overpaid clamps to zero", Some(dec("1000")), "0", decs("600", "600"), "0", PaymentStatusPaid},
		{"deposit equals total", Some(dec("300")), "300", nil, "0", PaymentStatusPaid},
		{"null total is paid", None(), "0", nil, "0", PaymentStatusPaid},
		{"null total with payments", None(), "0", decs("50"), "0", PaymentStatusPaid},
		{"zero total", Some(decimal.Zero), "0", nil, "0", PaymentStatusPaid},
		{"cents", Some(dec("99.99")), "0", decs("33.33", "33.33"), "33.33", PaymentStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ComputeBalance(tt.total, dec(tt.deposit), tt.payments)
			if !b.RemainingBalance.Equal(dec(tt.remaining)) {
				t.Errorf("remaining = %s, want %s", b.RemainingBalance, tt.remaining)
			}
			if b.PaymentStatus != tt.status {
				t.Errorf("status = %s, want %s", b.PaymentStatus, tt.status)
			}
			if b.BalancePaid != (tt.status == PaymentStatusPaid) {
				t.Errorf("balance_paid = %v with status %s", b.BalancePaid, b.PaymentStatus)
			}
		})
	}
}

func TestComputeBalance_Idempotent(t *testing.T) {
	total, deposit, payments := Some(dec("750")), dec("150"), decs("150", "200")
	first := ComputeBalance(total, deposit, payments)
	second := ComputeBalance(total, deposit, payments)
	if !first.RemainingBalance.Equal(second.RemainingBalance) || first.PaymentStatus != second.PaymentStatus {
		t.Errorf("expected identical results, got %+v and %+v", first, second)
	}
}

func TestComputeBalance_MonotonicUnderPayments(t *testing.T) {
	total, deposit := Some(dec("1000")), dec("200")
	var payments []decimal.Decimal
	prev := ComputeBalance(total, deposit, payments)
	for _, p := range decs("200", "150", "300", "500") {
		payments = append(payments, p)
		next := ComputeBalance(total, deposit, payments)
		if next.RemainingBalance.GreaterThan(prev.RemainingBalance) {
			t.Fatalf("remaining grew from %s to %s after paying %s", prev.RemainingBalance, next.RemainingBalance, p)
		}
		if next.RemainingBalance.IsNegative() {
			t.Fatalf("remaining went negative: %s", next.RemainingBalance)
		}
		prev = next
	}
	if prev.PaymentStatus != PaymentStatusPaid {
		t.Errorf("expected paid after overpayment, got %s", prev.PaymentStatus)
	}
}

func TestAmount(t *testing.T) {
	if None().IsSet() || !None().OrZero().IsZero() {
		t.Error("expected unset amount to resolve to zero")
	}
	if None().String() != "unset" {
		t.Errorf("unexpected String %q", None().String())
	}
	a := Some(dec("12.5"))
	if !a.IsSet() || a.String() != "12.50" || !a.OrZero().Equal(dec("12.5")) {
		t.Errorf("unexpected amount %v", a)
	}
}

func TestAmount_JSON(t *testing.T) {
	var a Amount
	if err := a.UnmarshalJSON([]byte("null")); err != nil || a.IsSet() {
		t.Errorf("expected null to stay unset, got %v %v", a, err)
	}
	if err := a.UnmarshalJSON([]byte(`"250.00"`)); err != nil || !a.OrZero().Equal(dec("250")) {
		t.Errorf("expected 250, got %v %v", a, err)
	}
	raw, err := None().MarshalJSON()
	if err != nil || string(raw) != "null" {
		t.Errorf("expected null, got %s %v", raw, err)
	}
}

func TestAmounts(t *testing.T) {
	got := Amounts([]*Payment{{Amount: dec("10")}, {Amount: dec("5.5")}})
	if len(got) != 2 || !got[1].Equal(dec("5.5")) {
		t.Errorf("unexpected amounts %v", got)
	}
}
