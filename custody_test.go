package custody_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/wallet"
)

// testEngine wires a memory store, a mock bitcoin backend and an
// internal btc backend into a started engine.
type testEngine struct {
	c    *custody.Custody
	st   *memory.Store
	mock *wallet.Mock
}

func newTestEngine(t *testing.T, opts ...custody.Option) *testEngine {
	t.Helper()

	st := memory.New()
	mock := wallet.NewMock("bitcoin", "btc")
	wallets := wallet.MustRegistry(mock, wallet.Internal("btc"))

	opts = append([]custody.Option{custody.WithWallets(wallets)}, opts...)
	c := custody.New(st, opts...)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })

	return &testEngine{c: c, st: st, mock: mock}
}

func (e *testEngine) register(t *testing.T, username, pubkey string) *account.User {
	t.Helper()
	u, err := e.c.Register(context.Background(), username, pubkey, 1)
	if err != nil {
		t.Fatalf("Register(%q) error = %v", username, err)
	}
	return u
}

func (e *testEngine) fund(t *testing.T, userID id.UserID, amount types.Money) {
	t.Helper()
	if _, err := e.st.CreditBalance(context.Background(), userID, amount, "seed"); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (e *testEngine) available(t *testing.T, userID id.UserID, currency string) int64 {
	t.Helper()
	b, err := e.c.Balance(context.Background(), userID, currency)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return b.Available.Amount
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	alice := e.register(t, "alice", "alice-key")
	if alice.Username != "alice" || !alice.Active {
		t.Errorf("unexpected user: %+v", alice)
	}
	if len(alice.Keys) != 1 || alice.Keys[0].LastNonce != 1 {
		t.Errorf("expected one key seeded with nonce 1, got %+v", alice.Keys)
	}

	// One zero balance per registry currency.
	balances, err := e.c.Balances(ctx, alice.ID)
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if len(balances) != 1 || balances[0].Currency != "btc" {
		t.Errorf("expected a single btc balance, got %+v", balances)
	}
	if !balances[0].Total.IsZero() || !balances[0].Available.IsZero() {
		t.Errorf("expected zero balance, got %+v", balances[0])
	}
}

func TestRegisterConflicts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.register(t, "alice", "alice-key")

	tests := []struct {
		name     string
		username string
		pubkey   string
	}{
		{"duplicate username", "alice", "other-key"},
		{"duplicate key", "bob", "alice-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.c.Register(ctx, tt.username, tt.pubkey, 1)
			if !errors.Is(err, custody.ErrUsernameTaken) {
				t.Errorf("Register() error = %v, want ErrUsernameTaken", err)
			}
		})
	}

	// No partial state from the rejected registrations.
	if _, err := e.c.UserByKey(ctx, "other-key"); !custody.IsNotFound(err) {
		t.Errorf("expected no user for other-key, got err = %v", err)
	}
	if _, err := e.c.Register(ctx, "", "k", 1); !errors.Is(err, custody.ErrInvalidInput) {
		t.Errorf("empty username error = %v, want ErrInvalidInput", err)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.register(t, "alice", "alice-key")

	u, err := e.c.Authenticate(ctx, "alice-key", 2)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ID.String() != alice.ID.String() {
		t.Errorf("authenticated wrong user: %s", u.ID)
	}

	// The registration nonce and anything at or below the high-water
	// mark is a replay.
	for _, nonce := range []int64{2, 1, 0} {
		if _, err := e.c.Authenticate(ctx, "alice-key", nonce); !errors.Is(err, custody.ErrReplayedNonce) {
			t.Errorf("Authenticate(nonce=%d) error = %v, want ErrReplayedNonce", nonce, err)
		}
	}

	// Rejections spend nothing: the next fresh nonce still works.
	if _, err := e.c.Authenticate(ctx, "alice-key", 3); err != nil {
		t.Errorf("Authenticate(nonce=3) error = %v", err)
	}

	if _, err := e.c.Authenticate(ctx, "ghost-key", 1); !errors.Is(err, custody.ErrUnknownIdentity) {
		t.Errorf("unknown key error = %v, want ErrUnknownIdentity", err)
	}
}

func TestTransferExternalFees(t *testing.T) {
	tests := []struct {
		name        string
		policy      transfer.FeePolicy
		amount      int64
		wantSent    int64
		wantDebited int64
		wantFee     int64
	}{
		{
			name:        "fee from amount to send",
			policy:      transfer.FeePolicy{RateBps: 100, Discount: transfer.DiscountAmountToSend},
			amount:      100,
			wantSent:    99,
			wantDebited: 100,
			wantFee:     1,
		},
		{
			name:        "fee on top of balance",
			policy:      transfer.FeePolicy{RateBps: 100, Discount: transfer.DiscountBalance},
			amount:      100,
			wantSent:    100,
			wantDebited: 101,
			wantFee:     1,
		},
		{
			name:        "no policy pays no fee",
			policy:      transfer.FeePolicy{},
			amount:      100,
			wantSent:    100,
			wantDebited: 100,
			wantFee:     0,
		},
		{
			name:        "sub-unit fee rounds up",
			policy:      transfer.FeePolicy{RateBps: 50, Discount: transfer.DiscountBalance},
			amount:      10001,
			wantSent:    10001,
			wantDebited: 10052,
			wantFee:     51,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newTestEngine(t, custody.WithFeePolicy("bitcoin", tt.policy))
			alice := e.register(t, "alice", "alice-key")
			e.fund(t, alice.ID, types.BTC(1_000_000))

			receipt, err := e.c.Transfer(ctx, alice.ID, types.BTC(tt.amount), "1ExternalDest", "bitcoin", "")
			if err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			if !receipt.Completed() {
				t.Fatalf("outcome = %s (%s), want completed", receipt.Outcome, receipt.Reason)
			}
			if receipt.Sent.Amount != tt.wantSent {
				t.Errorf("sent = %d, want %d", receipt.Sent.Amount, tt.wantSent)
			}
			if receipt.Debited.Amount != tt.wantDebited {
				t.Errorf("debited = %d, want %d", receipt.Debited.Amount, tt.wantDebited)
			}
			if receipt.Debit.Fee.Amount != tt.wantFee {
				t.Errorf("fee = %d, want %d", receipt.Debit.Fee.Amount, tt.wantFee)
			}
			if receipt.Debit.State != transfer.StateComplete {
				t.Errorf("debit state = %s, want complete", receipt.Debit.State)
			}
			if receipt.Debit.RefID == "" {
				t.Error("completed external debit missing backend ref")
			}

			// Balance lost exactly the debited amount; the backend saw
			// exactly the sent amount.
			if got := e.available(t, alice.ID, "btc"); got != 1_000_000-tt.wantDebited {
				t.Errorf("available = %d, want %d", got, 1_000_000-tt.wantDebited)
			}
			sends := e.mock.Sends()
			if len(sends) != 1 || sends[0].Amount.Amount != tt.wantSent {
				t.Errorf("backend sends = %+v, want one send of %d", sends, tt.wantSent)
			}
		})
	}
}

func TestTransferRejections(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.register(t, "alice", "alice-key")
	e.fund(t, alice.ID, types.BTC(100))

	tests := []struct {
		name    string
		amount  types.Money
		dest    string
		network string
		wantErr error
	}{
		{"unknown network", types.BTC(10), "1Dest", "foo", custody.ErrInvalidNetwork},
		{"internal with unknown address", types.BTC(10), "nobody", "internal", custody.ErrUnknownInternalAddress},
		{"insufficient funds", types.BTC(101), "1Dest", "bitcoin", custody.ErrInsufficientFunds},
		{"zero amount", types.BTC(0), "1Dest", "bitcoin", custody.ErrInvalidAmount},
		{"negative amount", types.New(-5, "btc"), "1Dest", "bitcoin", custody.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.c.Transfer(ctx, alice.ID, tt.amount, tt.dest, tt.network, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Transfer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejections leave no trace: balance untouched, no debit rows, no
	// backend traffic.
	if got := e.available(t, alice.ID, "btc"); got != 100 {
		t.Errorf("available = %d, want 100", got)
	}
	debits, err := e.c.Debits(ctx, alice.ID, transfer.ListOpts{})
	if err != nil {
		t.Fatalf("Debits: %v", err)
	}
	if len(debits) != 0 {
		t.Errorf("expected no debit rows, got %d", len(debits))
	}
	if len(e.mock.Sends()) != 0 {
		t.Errorf("expected no backend sends, got %+v", e.mock.Sends())
	}
}

func TestTransferBackendFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.register(t, "alice", "alice-key")
	e.fund(t, alice.ID, types.BTC(1000))

	e.mock.FailSend = errors.New("node unreachable")

	receipt, err := e.c.Transfer(ctx, alice.ID, types.BTC(400), "1Dest", "bitcoin", "")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !receipt.Pending() {
		t.Fatalf("outcome = %s, want pending", receipt.Outcome)
	}
	if receipt.Reason == "" {
		t.Error("pending receipt missing reason")
	}

	// The debit committed before the send and is never rolled back.
	if got := e.available(t, alice.ID, "btc"); got != 600 {
		t.Errorf("available = %d, want 600", got)
	}
	d, err := e.c.Debits(ctx, alice.ID, transfer.ListOpts{State: transfer.StateUnconfirmed})
	if err != nil {
		t.Fatalf("Debits: %v", err)
	}
	if len(d) != 1 || d[0].ID.String() != receipt.Debit.ID.String() {
		t.Errorf("expected the pending debit to stay unconfirmed, got %+v", d)
	}
}

func TestTransferInternalConservation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.register(t, "alice", "alice-key")
	bob := e.register(t, "bob", "bob-key")
	e.fund(t, alice.ID, types.BTC(1000))

	bobAddr, err := e.c.CreateAddress(ctx, bob.ID, "bitcoin")
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}

	// The destination is ledger-owned, so this settles internally even
	// though the caller named the bitcoin network, and pays no fee.
	receipt, err := e.c.Transfer(ctx, alice.ID, types.BTC(250), bobAddr.Value, "bitcoin", "rent")
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !receipt.Completed() {
		t.Fatalf("outcome = %s (%s), want completed", receipt.Outcome, receipt.Reason)
	}
	if receipt.Credit == nil {
		t.Fatal("internal receipt missing credit")
	}
	if receipt.Debited.Amount != 250 || receipt.Sent.Amount != 250 {
		t.Errorf("debited/sent = %d/%d, want 250/250", receipt.Debited.Amount, receipt.Sent.Amount)
	}

	if got := e.available(t, alice.ID, "btc"); got != 750 {
		t.Errorf("sender available = %d, want 750", got)
	}
	if got := e.available(t, bob.ID, "btc"); got != 250 {
		t.Errorf("recipient available = %d, want 250", got)
	}

	// Debit completed with the credit as its reference; nothing reached
	// the network backend.
	if receipt.Debit.State != transfer.StateComplete {
		t.Errorf("debit state = %s, want complete", receipt.Debit.State)
	}
	if receipt.Debit.RefID != receipt.Credit.ID.String() {
		t.Errorf("debit ref = %q, want credit id %q", receipt.Debit.RefID, receipt.Credit.ID)
	}
	if len(e.mock.Sends()) != 0 {
		t.Errorf("internal transfer reached the backend: %+v", e.mock.Sends())
	}

	credits, err := e.c.Credits(ctx, bob.ID, transfer.ListOpts{})
	if err != nil {
		t.Fatalf("Credits: %v", err)
	}
	if len(credits) != 1 || credits[0].Network != wallet.NetworkInternal {
		t.Errorf("expected one internal credit, got %+v", credits)
	}
}

func TestRetryableClassification(t *testing.T) {
	// Driver stores wrap commit failures onto the retryable sentinel so
	// callers can classify them without knowing the driver.
	err := fmt.Errorf("custody/postgres: record debit: %w: %w",
		errors.New("connection reset"), custody.ErrLedgerUnavailable)
	if !custody.IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
	if custody.IsRetryable(custody.ErrReplayedNonce) {
		t.Error("replayed nonce must not be retryable")
	}
}

// faultStore wraps the memory store to fail settlement writes, driving
// the paths where the sender side has committed but the transfer
// cannot finish.
type faultStore struct {
	*memory.Store
	creditErr      error
	debitUpdateErr error
}

func (s *faultStore) ApplyCredit(ctx context.Context, c *transfer.Credit) error {
	if s.creditErr != nil {
		return s.creditErr
	}
	return s.Store.ApplyCredit(ctx, c)
}

func (s *faultStore) UpdateDebitState(ctx context.Context, debitID id.DebitID, state transfer.State, refID string) error {
	if s.debitUpdateErr != nil {
		return s.debitUpdateErr
	}
	return s.Store.UpdateDebitState(ctx, debitID, state, refID)
}

func TestTransferInternalSettlementFailureLeavesPending(t *testing.T) {
	tests := []struct {
		name       string
		arm        func(st *faultStore)
		wantCredit bool
		wantBob    int64
	}{
		{
			name:       "credit write fails",
			arm:        func(st *faultStore) { st.creditErr = errors.New("store offline") },
			wantCredit: false,
			wantBob:    0,
		},
		{
			name:       "debit completion fails after credit",
			arm:        func(st *faultStore) { st.debitUpdateErr = errors.New("store offline") },
			wantCredit: true,
			wantBob:    300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := &faultStore{Store: memory.New()}
			wallets := wallet.MustRegistry(wallet.NewMock("bitcoin", "btc"), wallet.Internal("btc"))
			c := custody.New(st, custody.WithWallets(wallets))
			if err := c.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			t.Cleanup(func() { _ = c.Stop() })

			alice, err := c.Register(ctx, "alice", "alice-key", 1)
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			bob, err := c.Register(ctx, "bob", "bob-key", 1)
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			bobAddr, err := c.CreateAddress(ctx, bob.ID, "bitcoin")
			if err != nil {
				t.Fatalf("CreateAddress: %v", err)
			}
			if _, err := st.CreditBalance(ctx, alice.ID, types.BTC(1000), "seed"); err != nil {
				t.Fatalf("fund: %v", err)
			}

			tt.arm(st)

			receipt, err := c.Transfer(ctx, alice.ID, types.BTC(300), bobAddr.Value, "internal", "")
			if err != nil {
				t.Fatalf("Transfer: %v", err)
			}
			if !receipt.Pending() {
				t.Fatalf("outcome = %s, want pending", receipt.Outcome)
			}
			if receipt.Reason == "" {
				t.Error("pending receipt missing reason")
			}
			if (receipt.Credit != nil) != tt.wantCredit {
				t.Errorf("receipt credit = %+v, want credit present = %v", receipt.Credit, tt.wantCredit)
			}

			// The sender's decrement committed and is never rolled back.
			ab, err := st.LatestBalance(ctx, alice.ID, "btc")
			if err != nil {
				t.Fatalf("LatestBalance(alice): %v", err)
			}
			if ab.Available.Amount != 700 {
				t.Errorf("sender available = %d, want 700", ab.Available.Amount)
			}
			bb, err := st.LatestBalance(ctx, bob.ID, "btc")
			if err != nil {
				t.Fatalf("LatestBalance(bob): %v", err)
			}
			if bb.Available.Amount != tt.wantBob {
				t.Errorf("recipient available = %d, want %d", bb.Available.Amount, tt.wantBob)
			}

			// The debit stays unconfirmed for out-of-band resolution.
			d, err := st.GetDebit(ctx, receipt.Debit.ID)
			if err != nil {
				t.Fatalf("GetDebit: %v", err)
			}
			if d.State != transfer.StateUnconfirmed {
				t.Errorf("debit state = %s, want unconfirmed", d.State)
			}
		})
	}
}

func TestCreateAddress(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := e.register(t, "alice", "alice-key")

	a, err := e.c.CreateAddress(ctx, alice.ID, "bitcoin")
	if err != nil {
		t.Fatalf("CreateAddress: %v", err)
	}
	if a.Currency != "btc" || a.Network != "bitcoin" || a.State != "active" {
		t.Errorf("unexpected address: %+v", a)
	}

	if _, err := e.c.CreateAddress(ctx, alice.ID, "foo"); !errors.Is(err, custody.ErrInvalidNetwork) {
		t.Errorf("unknown network error = %v, want ErrInvalidNetwork", err)
	}

	// A backend failure has no ledger side effects.
	e.mock.FailNewAddress = errors.New("node unreachable")
	if _, err := e.c.CreateAddress(ctx, alice.ID, "bitcoin"); !errors.Is(err, custody.ErrWalletUnavailable) {
		t.Errorf("backend failure error = %v, want ErrWalletUnavailable", err)
	}
	addrs, err := e.c.Addresses(ctx, alice.ID, address.ListOpts{Network: "bitcoin"})
	if err != nil {
		t.Fatalf("Addresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0].Value != a.Value {
		t.Errorf("expected exactly the provisioned address, got %+v", addrs)
	}
}
