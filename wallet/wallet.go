// Package wallet defines the network backend capability and the
// read-only registry the engine resolves networks against.
//
// A Backend fronts one external value-transfer network for one currency.
// Backends are collected into a Registry at startup; the engine never
// mutates the set afterwards, so lookups need no locking.
package wallet

import (
	"context"

	"github.com/xraph/custody/types"
)

// Backend is implemented by per-network wallet integrations.
type Backend interface {
	// Network returns the backend's network name, e.g. "bitcoin".
	Network() string

	// Currency returns the currency code this backend moves, e.g. "btc".
	Currency() string

	// GetNewAddress provisions a fresh receiving address. A failure has
	// no ledger side effects.
	GetNewAddress(ctx context.Context) (string, error)

	// SendToAddress submits an outbound transfer and returns the
	// network-level transaction reference. By the time this is called the
	// sender's balance has already been debited; a failure leaves the
	// debit unconfirmed.
	SendToAddress(ctx context.Context, addr string, amount types.Money) (string, error)
}

// NetworkInternal is the reserved network name for ledger-internal
// transfers. It never reaches a backend's SendToAddress.
const NetworkInternal = "internal"
