package custody_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/custody"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/wallet"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Register the networks this deployment serves
		wallets := wallet.MustRegistry(
			wallet.NewMock("bitcoin", "btc"),
			wallet.Internal("btc"),
		)

		// Create the engine
		c := custody.New(store,
			custody.WithLogger(slog.Default()),
			custody.WithWallets(wallets),
			custody.WithFeePolicy("bitcoin", transfer.FeePolicy{
				RateBps:  100, // 1%
				Discount: transfer.DiscountAmountToSend,
			}),
		)

		// Start the engine
		ctx := context.Background()
		if err := c.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer c.Stop()

		// Register an account: user + key + one zero balance per currency
		alice, err := c.Register(ctx, "alice", "alice-pubkey", 1)
		if err != nil {
			t.Fatal(err)
		}

		// Every request envelope consumes a strictly increasing nonce
		if _, err := c.Authenticate(ctx, "alice-pubkey", 2); err != nil {
			t.Fatal(err)
		}

		// Provision a receiving address
		addr, err := c.CreateAddress(ctx, alice.ID, "bitcoin")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("receiving address: %s\n", addr.Value)

		// Fund the account, then send
		if _, err := store.CreditBalance(ctx, alice.ID, types.BTC(100000), "deposit"); err != nil {
			t.Fatal(err)
		}

		receipt, err := c.Transfer(ctx, alice.ID, types.BTC(50000), "1ExternalDest", "bitcoin", "demo")
		if err != nil {
			t.Fatal(err)
		}
		if !receipt.Completed() {
			t.Fatalf("expected completed transfer, got %s (%s)", receipt.Outcome, receipt.Reason)
		}
		log.Printf("sent %s, debited %s\n", receipt.Sent.String(), receipt.Debited.String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.BTC(50000)  // 50000 satoshi
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)     // $3.00
		_ = m1.Multiply(3) // $3.00
		_ = m1.Divide(2)   // $0.50

		// Fees in basis points, rounded up
		_ = types.USD(100).BpsPortion(100) // $0.01

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}
