package custody

import (
	"context"
	"log/slog"
	"strings"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/plugin"
	"github.com/xraph/custody/store"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
	"github.com/xraph/custody/wallet"
)

// Custody is the main custody engine. It owns identity, balances,
// addresses and transfer routing; durable state lives in the Store and
// network access goes through the wallet Registry.
type Custody struct {
	store   store.Store
	wallets *wallet.Registry
	plugins *plugin.Registry
	guard   *NonceGuard
	logger  *slog.Logger

	// Per-network fee policies, keyed by lowercase network name.
	// Networks without an entry pay no fee.
	fees map[string]transfer.FeePolicy
}

// New creates a new Custody instance.
func New(s store.Store, opts ...Option) *Custody {
	c := &Custody{
		store:   s,
		wallets: wallet.MustRegistry(),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		fees:    make(map[string]transfer.FeePolicy),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.guard = NewNonceGuard(s, c.plugins, c.logger)
	return c
}

// Option configures a Custody instance.
type Option func(*Custody)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Custody) {
		c.logger = logger
		c.plugins.WithLogger(logger)
	}
}

// WithWallets sets the wallet backend registry.
func WithWallets(r *wallet.Registry) Option {
	return func(c *Custody) {
		c.wallets = r
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Custody) {
		_ = c.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithFeePolicy sets the fee policy for a network.
func WithFeePolicy(network string, policy transfer.FeePolicy) Option {
	return func(c *Custody) {
		c.fees[strings.ToLower(network)] = policy
	}
}

// Start migrates the store and initializes plugins.
func (c *Custody) Start(ctx context.Context) error {
	if err := c.store.Migrate(ctx); err != nil {
		return err
	}

	c.plugins.EmitInit(ctx, c)

	c.logger.Info("custody started",
		"networks", c.wallets.Networks(),
		"currencies", c.wallets.Currencies(),
	)
	return nil
}

// Stop shuts down the engine.
func (c *Custody) Stop() error {
	c.plugins.EmitShutdown(context.Background())
	return c.store.Close()
}

// Wallets returns the wallet backend registry.
func (c *Custody) Wallets() *wallet.Registry { return c.wallets }

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// Register provisions a new account: the user, its signing key seeded
// with the registration nonce, and one zero balance per currency the
// wallet registry serves. The whole unit commits or nothing does.
func (c *Custody) Register(ctx context.Context, username, pubkey string, nonce int64) (*account.User, error) {
	if username == "" || pubkey == "" {
		return nil, ErrInvalidInput
	}

	user := &account.User{
		Entity:   types.NewEntity(),
		ID:       id.NewUserID(),
		Username: username,
		Active:   true,
	}
	key := &account.UserKey{
		Entity:    types.NewEntity(),
		ID:        id.NewUserKeyID(),
		UserID:    user.ID,
		Key:       pubkey,
		LastNonce: nonce,
	}

	currencies := c.wallets.Currencies()
	balances := make([]*balance.Balance, 0, len(currencies))
	for _, cur := range currencies {
		balances = append(balances, balance.Zero(user.ID, cur))
	}

	if err := c.store.CreateAccount(ctx, user, key, balances); err != nil {
		if IsAlreadyExists(err) {
			return nil, ErrUsernameTaken
		}
		c.logger.Error("registration failed", "username", username, "error", err)
		return nil, ErrRegistrationFailed
	}

	user.Keys = []account.UserKey{*key}
	c.plugins.EmitUserRegistered(ctx, user)
	return user, nil
}

// Authenticate is the request envelope boundary: it consumes the nonce
// for the key and resolves the owning user. A replayed nonce rejects
// the request before any user state is touched.
func (c *Custody) Authenticate(ctx context.Context, pubkey string, nonce int64) (*account.User, error) {
	if err := c.guard.Check(ctx, pubkey, nonce); err != nil {
		return nil, err
	}
	return c.store.GetUserByKey(ctx, pubkey)
}

// User retrieves a user by ID.
func (c *Custody) User(ctx context.Context, userID id.UserID) (*account.User, error) {
	return c.store.GetUser(ctx, userID)
}

// UserByKey retrieves the user owning a public key.
func (c *Custody) UserByKey(ctx context.Context, pubkey string) (*account.User, error) {
	return c.store.GetUserByKey(ctx, pubkey)
}

// ──────────────────────────────────────────────────
// Balances and addresses
// ──────────────────────────────────────────────────

// Balance returns the user's position in one currency.
func (c *Custody) Balance(ctx context.Context, userID id.UserID, currency string) (*balance.Balance, error) {
	return c.store.LatestBalance(ctx, userID, strings.ToLower(currency))
}

// Balances returns all of the user's currency positions.
func (c *Custody) Balances(ctx context.Context, userID id.UserID) ([]*balance.Balance, error) {
	return c.store.ListBalances(ctx, userID)
}

// CreateAddress provisions a fresh receiving address on the given
// network and records it as active. A backend failure leaves no trace.
func (c *Custody) CreateAddress(ctx context.Context, userID id.UserID, network string) (*address.Address, error) {
	backend, ok := c.wallets.Lookup(network)
	if !ok {
		return nil, ErrInvalidNetwork
	}

	value, err := backend.GetNewAddress(ctx)
	if err != nil {
		c.logger.Error("address provisioning failed", "network", backend.Network(), "error", err)
		return nil, ErrWalletUnavailable
	}

	a := &address.Address{
		Entity:   types.NewEntity(),
		ID:       id.NewAddressID(),
		UserID:   userID,
		Value:    value,
		Currency: backend.Currency(),
		Network:  backend.Network(),
		State:    address.StateActive,
	}
	if err := c.store.CreateAddress(ctx, a); err != nil {
		return nil, err
	}

	c.plugins.EmitAddressCreated(ctx, a)
	return a, nil
}

// Addresses lists the user's addresses with optional filters.
func (c *Custody) Addresses(ctx context.Context, userID id.UserID, opts address.ListOpts) ([]*address.Address, error) {
	return c.store.ListAddresses(ctx, userID, opts)
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// route is the resolved destination of a transfer: either another
// ledger account or a network backend.
type route struct {
	recipient id.UserID      // internal only
	backend   wallet.Backend // external only
	internal  bool
}

// Transfer moves amount from the sender to the destination address,
// settling internally when the address belongs to a ledger account and
// through the network backend otherwise.
//
// The returned Receipt is three-valued: Completed means funds reached
// the destination, Pending means the sender was debited but settlement
// was not observed, and a rejected transfer returns an error with no
// ledger mutation at all.
func (c *Custody) Transfer(ctx context.Context, userID id.UserID, amount types.Money, destAddr, network, reference string) (*transfer.Receipt, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	network = strings.ToLower(network)

	r, err := c.resolveRoute(ctx, destAddr, network, amount.Currency)
	if err != nil {
		return nil, err
	}

	// Internal settlement carries no network fee.
	sent, debited, fee := amount, amount, types.Zero(amount.Currency)
	if !r.internal {
		sent, debited, fee = c.fees[network].Apply(amount)
	}
	if !sent.IsPositive() {
		return nil, ErrInvalidAmount
	}

	d := &transfer.Debit{
		Entity:    types.NewEntity(),
		ID:        id.NewDebitID(),
		UserID:    userID,
		Amount:    sent,
		Debited:   debited,
		Fee:       fee,
		Address:   destAddr,
		Currency:  amount.Currency,
		Network:   network,
		State:     transfer.StateUnconfirmed,
		Reference: reference,
	}
	if err := c.store.ApplyDebit(ctx, d); err != nil {
		if IsInsufficientFunds(err) {
			c.plugins.EmitInsufficientFunds(ctx, userID.String(), debited)
		}
		return nil, err
	}
	c.plugins.EmitDebitCreated(ctx, d)

	if r.internal {
		return c.settleInternal(ctx, d, r.recipient, sent, destAddr, reference)
	}
	return c.settleExternal(ctx, d, r.backend, destAddr, sent)
}

// resolveRoute classifies the destination once, before any mutation.
func (c *Custody) resolveRoute(ctx context.Context, destAddr, network, currency string) (route, error) {
	if network != wallet.NetworkInternal && !c.wallets.Has(network) {
		return route{}, ErrInvalidNetwork
	}

	a, err := c.store.GetAddress(ctx, destAddr, currency)
	if err == nil {
		// A ledger-owned address settles internally regardless of the
		// caller-supplied network.
		return route{recipient: a.UserID, internal: true}, nil
	}
	if !IsNotFound(err) {
		return route{}, err
	}

	if network == wallet.NetworkInternal {
		return route{}, ErrUnknownInternalAddress
	}

	backend, _ := c.wallets.Lookup(network)
	return route{backend: backend}, nil
}

// settleInternal credits the recipient and completes the debit. The
// sender's decrement is never rolled back: any failure past that point
// leaves the debit unconfirmed for out-of-band resolution.
func (c *Custody) settleInternal(ctx context.Context, d *transfer.Debit, recipient id.UserID, sent types.Money, destAddr, reference string) (*transfer.Receipt, error) {
	cr := &transfer.Credit{
		Entity:    types.NewEntity(),
		ID:        id.NewCreditID(),
		UserID:    recipient,
		Amount:    sent,
		Address:   destAddr,
		Currency:  sent.Currency,
		Network:   wallet.NetworkInternal,
		State:     transfer.StateComplete,
		Reference: reference,
		RefID:     d.ID.String(),
	}
	if err := c.store.ApplyCredit(ctx, cr); err != nil {
		c.logger.Error("internal credit failed after debit", "debit_id", d.ID.String(), "error", err)
		return c.pendingReceipt(ctx, d, nil, sent, "internal credit failed: "+err.Error()), nil
	}
	c.plugins.EmitCreditCreated(ctx, cr)

	if err := c.store.UpdateDebitState(ctx, d.ID, transfer.StateComplete, cr.ID.String()); err != nil {
		c.logger.Error("debit completion failed after credit", "debit_id", d.ID.String(), "error", err)
		return c.pendingReceipt(ctx, d, cr, sent, "debit completion failed: "+err.Error()), nil
	}
	d.State = transfer.StateComplete
	d.RefID = cr.ID.String()

	receipt := &transfer.Receipt{
		Outcome: transfer.OutcomeCompleted,
		Debit:   d,
		Credit:  cr,
		Debited: d.Debited,
		Sent:    sent,
	}
	c.plugins.EmitTransferCompleted(ctx, receipt)
	return receipt, nil
}

// settleExternal hands the send to the network backend. A backend
// failure leaves the debit unconfirmed; the funds already left the
// sender's balance and stay reserved until resolved out of band.
func (c *Custody) settleExternal(ctx context.Context, d *transfer.Debit, backend wallet.Backend, destAddr string, sent types.Money) (*transfer.Receipt, error) {
	txid, err := backend.SendToAddress(ctx, destAddr, sent)
	if err != nil {
		c.logger.Warn("backend send failed, debit stays unconfirmed",
			"debit_id", d.ID.String(),
			"network", backend.Network(),
			"error", err,
		)
		return c.pendingReceipt(ctx, d, nil, sent, "backend send failed: "+err.Error()), nil
	}

	if err := c.store.UpdateDebitState(ctx, d.ID, transfer.StateComplete, txid); err != nil {
		c.logger.Error("debit completion failed after send", "debit_id", d.ID.String(), "error", err)
		return c.pendingReceipt(ctx, d, nil, sent, "debit completion failed: "+err.Error()), nil
	}
	d.State = transfer.StateComplete
	d.RefID = txid

	receipt := &transfer.Receipt{
		Outcome: transfer.OutcomeCompleted,
		Debit:   d,
		Debited: d.Debited,
		Sent:    sent,
	}
	c.plugins.EmitTransferCompleted(ctx, receipt)
	return receipt, nil
}

func (c *Custody) pendingReceipt(ctx context.Context, d *transfer.Debit, cr *transfer.Credit, sent types.Money, reason string) *transfer.Receipt {
	receipt := &transfer.Receipt{
		Outcome: transfer.OutcomePending,
		Debit:   d,
		Credit:  cr,
		Debited: d.Debited,
		Sent:    sent,
		Reason:  reason,
	}
	c.plugins.EmitTransferPending(ctx, receipt)
	return receipt
}

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

// Debits lists the user's outgoing entries.
func (c *Custody) Debits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Debit, error) {
	return c.store.ListDebits(ctx, userID, opts)
}

// Credits lists the user's incoming entries.
func (c *Custody) Credits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Credit, error) {
	return c.store.ListCredits(ctx, userID, opts)
}
