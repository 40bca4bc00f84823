package transfer

import (
	"testing"

	"github.com/xraph/custody/types"
)

func TestFeePolicyApply(t *testing.T) {
	tests := []struct {
		name    string
		policy  FeePolicy
		amount  types.Money
		sent    types.Money
		debited types.Money
		fee     types.Money
	}{
		{
			name:    "amount_to_send 1pct of 100",
			policy:  FeePolicy{RateBps: 100, Discount: DiscountAmountToSend},
			amount:  types.BTC(100),
			sent:    types.BTC(99),
			debited: types.BTC(100),
			fee:     types.BTC(1),
		},
		{
			name:    "balance 1pct of 100",
			policy:  FeePolicy{RateBps: 100, Discount: DiscountBalance},
			amount:  types.BTC(100),
			sent:    types.BTC(100),
			debited: types.BTC(101),
			fee:     types.BTC(1),
		},
		{
			name:    "fee rounds up amount_to_send",
			policy:  FeePolicy{RateBps: 100, Discount: DiscountAmountToSend},
			amount:  types.BTC(99),
			sent:    types.BTC(98),
			debited: types.BTC(99),
			fee:     types.BTC(1),
		},
		{
			name:    "fee rounds up balance",
			policy:  FeePolicy{RateBps: 50, Discount: DiscountBalance},
			amount:  types.BTC(10001),
			sent:    types.BTC(10001),
			debited: types.BTC(10052),
			fee:     types.BTC(51),
		},
		{
			name:    "no discount mode charges nothing",
			policy:  FeePolicy{RateBps: 100, Discount: DiscountNone},
			amount:  types.BTC(100),
			sent:    types.BTC(100),
			debited: types.BTC(100),
			fee:     types.Zero("btc"),
		},
		{
			name:    "zero rate charges nothing",
			policy:  FeePolicy{RateBps: 0, Discount: DiscountBalance},
			amount:  types.DASH(500),
			sent:    types.DASH(500),
			debited: types.DASH(500),
			fee:     types.Zero("dash"),
		},
		{
			name:    "zero policy",
			policy:  FeePolicy{},
			amount:  types.BTC(100),
			sent:    types.BTC(100),
			debited: types.BTC(100),
			fee:     types.Zero("btc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent, debited, fee := tt.policy.Apply(tt.amount)
			if !sent.Equal(tt.sent) {
				t.Errorf("sent: got %v, want %v", sent, tt.sent)
			}
			if !debited.Equal(tt.debited) {
				t.Errorf("debited: got %v, want %v", debited, tt.debited)
			}
			if !fee.Equal(tt.fee) {
				t.Errorf("fee: got %v, want %v", fee, tt.fee)
			}
		})
	}
}

func TestFeePolicyConservation(t *testing.T) {
	// Whatever the mode, debited - sent always equals the fee.
	policies := []FeePolicy{
		{RateBps: 100, Discount: DiscountAmountToSend},
		{RateBps: 100, Discount: DiscountBalance},
		{RateBps: 37, Discount: DiscountAmountToSend},
		{RateBps: 9999, Discount: DiscountBalance},
		{},
	}
	amounts := []int64{1, 99, 100, 101, 12345, 99999999}

	for _, p := range policies {
		for _, a := range amounts {
			sent, debited, fee := p.Apply(types.BTC(a))
			if got := debited.Subtract(sent); !got.Equal(fee) {
				t.Errorf("policy %+v amount %d: debited-sent = %v, fee = %v", p, a, got, fee)
			}
		}
	}
}

func TestFeePolicyIsZero(t *testing.T) {
	if !(FeePolicy{}).IsZero() {
		t.Error("empty policy should be zero")
	}
	if !(FeePolicy{RateBps: 100}).IsZero() {
		t.Error("policy without discount mode should be zero")
	}
	if (FeePolicy{RateBps: 100, Discount: DiscountBalance}).IsZero() {
		t.Error("configured policy should not be zero")
	}
}
