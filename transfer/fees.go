package transfer

import "github.com/xraph/custody/types"

// DiscountMode selects who absorbs the network fee.
type DiscountMode string

const (
	// DiscountAmountToSend deducts the fee from the amount forwarded: the
	// sender's balance loses exactly the requested amount and the
	// destination receives less.
	DiscountAmountToSend DiscountMode = "amount_to_send"
	// DiscountBalance forwards the full requested amount and charges the
	// fee on top of it against the sender's balance.
	DiscountBalance DiscountMode = "balance"
	// DiscountNone charges no fee.
	DiscountNone DiscountMode = ""
)

// FeePolicy is the per-network fee configuration. RateBps is an integer
// rate in basis points (100 bps = 1%). Fees round up, so the ledger
// never under-collects on sub-unit remainders.
type FeePolicy struct {
	RateBps  int64        `json:"rate_bps"`
	Discount DiscountMode `json:"discount"`
}

// Apply resolves the requested amount into what leaves toward the
// destination (sent) and what the sender's balance loses (debited).
func (p FeePolicy) Apply(amount types.Money) (sent, debited, fee types.Money) {
	fee = p.Fee(amount)
	switch p.Discount {
	case DiscountAmountToSend:
		return amount.Subtract(fee), amount, fee
	case DiscountBalance:
		return amount, amount.Add(fee), fee
	default:
		return amount, amount, types.Zero(amount.Currency)
	}
}

// Fee returns the fee charged on amount under this policy.
func (p FeePolicy) Fee(amount types.Money) types.Money {
	if p.Discount == DiscountNone || p.RateBps <= 0 {
		return types.Zero(amount.Currency)
	}
	return amount.BpsPortion(p.RateBps)
}

// IsZero reports whether the policy charges nothing.
func (p FeePolicy) IsZero() bool {
	return p.Discount == DiscountNone || p.RateBps <= 0
}
