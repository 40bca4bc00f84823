// Package plugin provides an extensible plugin system for Custody.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account lifecycle hooks
// ──────────────────────────────────────────────────

// OnUserRegistered is called after an account is provisioned.
type OnUserRegistered interface {
	Plugin
	OnUserRegistered(ctx context.Context, user *account.User) error
}

// OnAddressCreated is called after a receiving address is persisted.
type OnAddressCreated interface {
	Plugin
	OnAddressCreated(ctx context.Context, addr *address.Address) error
}

// ──────────────────────────────────────────────────
// Transfer lifecycle hooks
// ──────────────────────────────────────────────────

// OnDebitCreated is called once a debit has been committed against the
// sender's balance, before settlement is attempted.
type OnDebitCreated interface {
	Plugin
	OnDebitCreated(ctx context.Context, d *transfer.Debit) error
}

// OnCreditCreated is called after a terminal credit is written.
type OnCreditCreated interface {
	Plugin
	OnCreditCreated(ctx context.Context, c *transfer.Credit) error
}

// OnTransferCompleted is called when a transfer settles.
type OnTransferCompleted interface {
	Plugin
	OnTransferCompleted(ctx context.Context, r *transfer.Receipt) error
}

// OnTransferPending is called when a transfer commits on the sender side
// but settlement was not observed.
type OnTransferPending interface {
	Plugin
	OnTransferPending(ctx context.Context, r *transfer.Receipt) error
}

// ──────────────────────────────────────────────────
// Rejection hooks
// ──────────────────────────────────────────────────

// OnReplayRejected is called when a request fails nonce replay
// protection.
type OnReplayRejected interface {
	Plugin
	OnReplayRejected(ctx context.Context, pubkey string, nonce, lastNonce int64) error
}

// OnInsufficientFunds is called when a transfer is rejected for lack of
// available balance.
type OnInsufficientFunds interface {
	Plugin
	OnInsufficientFunds(ctx context.Context, userID string, requested types.Money) error
}
