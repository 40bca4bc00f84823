// Package custody provides a centralized multi-currency custody ledger for Go applications.
//
// Custody is designed as a library, not a service. Import it directly into your
// Go application and wire it to the wallet backends you operate. It provides:
//
//   - Public-key account identity with monotonic-nonce replay protection
//   - Per-currency balance bookkeeping with a total/available split
//   - Internal settlement between ledger accounts without touching a network
//   - External sends through pluggable per-network wallet backends
//   - Basis-point fee policies charged either against the amount or on top of it
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create a custody instance with your preferred store and backends:
//
//	import (
//	    "github.com/xraph/custody"
//	    "github.com/xraph/custody/store/postgres"
//	    "github.com/xraph/custody/wallet"
//	)
//
//	// Initialize store
//	store := postgres.New(db)
//
//	// Register the networks this deployment serves
//	wallets := wallet.MustRegistry(
//	    bitcoinBackend,
//	    wallet.Internal("btc"),
//	)
//
//	// Create the engine
//	c := custody.New(store,
//	    custody.WithWallets(wallets),
//	    custody.WithFeePolicy("bitcoin", transfer.FeePolicy{
//	        RateBps:  100,
//	        Discount: transfer.DiscountAmountToSend,
//	    }),
//	)
//
//	// Start (runs migrations, initializes plugins)
//	if err := c.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Stop()
//
// # Core Concepts
//
// Accounts are provisioned atomically with their signing key and one zero
// balance per registry currency:
//
//	user, err := c.Register(ctx, "alice", alicePubkey, 1)
//
// Every request envelope carries a nonce that must strictly exceed the
// key's previous one. Authenticate consumes the nonce and resolves the user:
//
//	user, err := c.Authenticate(ctx, alicePubkey, nonce)
//	if custody.IsAuthError(err) {
//	    // reject the request; the nonce is spent either way
//	}
//
// Transfers route automatically. A destination address owned by the ledger
// settles internally; anything else goes out through the network backend:
//
//	receipt, err := c.Transfer(ctx, user.ID, custody.BTC(50000), dest, "bitcoin", "")
//	switch {
//	case err != nil:
//	    // rejected: no ledger mutation happened
//	case receipt.Completed():
//	    // funds reached the destination
//	case receipt.Pending():
//	    // sender debited, settlement unconfirmed; resolved out of band
//	}
//
// # Money
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest currency
// unit (cents for USD, satoshi for BTC, duffs for DASH). Fees are integer
// basis points and round up, so the platform never under-collects.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	usr_01h2xcejqtf2nbrexx3vqjhp41   // User ID
//	bal_01h2xcejqtf2nbrexx3vqjhp41   // Balance ID
//	deb_01h455vb4pex5vsknk084sn02q   // Debit ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package custody
