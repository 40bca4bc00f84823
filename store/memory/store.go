package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Store is an in-memory Store implementation. A single store-wide mutex
// makes every method atomic, which is what the balance and nonce
// invariants require.
type Store struct {
	mu sync.RWMutex

	// Account storage
	users     map[string]*account.User    // by user ID
	usernames map[string]string           // username -> user ID
	keys      map[string]*account.UserKey // by pubkey

	// Balance storage, keyed userID|currency
	balances map[string]*balance.Balance

	// Address storage, keyed value|currency
	addresses map[string]*address.Address

	// Transfer storage
	debits  map[string]*transfer.Debit
	credits map[string]*transfer.Credit
}

func New() *Store {
	return &Store{
		users:     make(map[string]*account.User),
		usernames: make(map[string]string),
		keys:      make(map[string]*account.UserKey),
		balances:  make(map[string]*balance.Balance),
		addresses: make(map[string]*address.Address),
		debits:    make(map[string]*transfer.Debit),
		credits:   make(map[string]*transfer.Credit),
	}
}

// Account Store implementation

func (s *Store) CreateAccount(_ context.Context, user *account.User, key *account.UserKey, balances []*balance.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[user.Username]; exists {
		return custody.ErrAlreadyExists
	}
	if _, exists := s.keys[key.Key]; exists {
		return custody.ErrAlreadyExists
	}

	u := *user
	u.Keys = []account.UserKey{*key}
	s.users[u.ID.String()] = &u
	s.usernames[u.Username] = u.ID.String()

	k := *key
	s.keys[k.Key] = &k

	for _, b := range balances {
		bb := *b
		s.balances[balanceKey(bb.UserID, bb.Currency)] = &bb
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID.String()]; ok {
		return u, nil
	}
	return nil, custody.ErrUserNotFound
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if uid, ok := s.usernames[username]; ok {
		return s.users[uid], nil
	}
	return nil, custody.ErrUserNotFound
}

func (s *Store) GetUserByKey(_ context.Context, pubkey string) (*account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k, ok := s.keys[pubkey]; ok {
		if u, ok := s.users[k.UserID.String()]; ok {
			return u, nil
		}
	}
	return nil, custody.ErrUserNotFound
}

func (s *Store) ConsumeNonce(_ context.Context, pubkey string, nonce int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[pubkey]
	if !ok {
		return 0, custody.ErrUnknownIdentity
	}
	prior := k.LastNonce
	if nonce <= prior {
		return prior, custody.ErrReplayedNonce
	}
	k.LastNonce = nonce
	k.Touch()

	// Keep the embedded copy on the user in sync for reads.
	if u, ok := s.users[k.UserID.String()]; ok {
		if uk := u.FindKey(pubkey); uk != nil {
			uk.LastNonce = nonce
		}
	}
	return prior, nil
}

// Balance Store implementation

func (s *Store) LatestBalance(_ context.Context, userID id.UserID, currency string) (*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.balances[balanceKey(userID, currency)]; ok {
		return b, nil
	}
	return nil, custody.ErrNotFound
}

func (s *Store) ListBalances(_ context.Context, userID id.UserID) ([]*balance.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*balance.Balance, 0)
	for _, b := range s.balances {
		if b.UserID.String() == userID.String() {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

func (s *Store) CreditBalance(_ context.Context, userID id.UserID, amount types.Money, reference string) (*balance.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(userID, amount.Currency)
	b.Total = b.Total.Add(amount)
	b.Available = b.Available.Add(amount)
	b.Reference = reference
	b.Version++
	b.Touch()
	return b, nil
}

// Address Store implementation

func (s *Store) CreateAddress(_ context.Context, a *address.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addressKey(a.Value, a.Currency)
	if _, exists := s.addresses[key]; exists {
		return custody.ErrAlreadyExists
	}
	aa := *a
	s.addresses[key] = &aa
	return nil
}

func (s *Store) GetAddress(_ context.Context, value, currency string) (*address.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.addresses[addressKey(value, currency)]; ok {
		return a, nil
	}
	return nil, custody.ErrAddressNotFound
}

func (s *Store) ListAddresses(_ context.Context, userID id.UserID, opts address.ListOpts) ([]*address.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*address.Address, 0)
	for _, a := range s.addresses {
		if a.UserID.String() != userID.String() {
			continue
		}
		if opts.Value != "" && a.Value != opts.Value {
			continue
		}
		if opts.Currency != "" && a.Currency != strings.ToLower(opts.Currency) {
			continue
		}
		if opts.Network != "" && a.Network != strings.ToLower(opts.Network) {
			continue
		}
		if opts.State != "" && a.State != opts.State {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Transfer Store implementation

func (s *Store) ApplyDebit(_ context.Context, d *transfer.Debit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[balanceKey(d.UserID, d.Debited.Currency)]
	if !ok || b.Available.LessThan(d.Debited) {
		return custody.ErrInsufficientFunds
	}

	b.Total = b.Total.Subtract(d.Debited)
	b.Available = b.Available.Subtract(d.Debited)
	b.Version++
	b.Touch()

	dd := *d
	s.debits[dd.ID.String()] = &dd
	return nil
}

func (s *Store) ApplyCredit(_ context.Context, c *transfer.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(c.UserID, c.Amount.Currency)
	b.Total = b.Total.Add(c.Amount)
	b.Available = b.Available.Add(c.Amount)
	b.Version++
	b.Touch()

	cc := *c
	s.credits[cc.ID.String()] = &cc
	return nil
}

func (s *Store) UpdateDebitState(_ context.Context, debitID id.DebitID, state transfer.State, refID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.debits[debitID.String()]
	if !ok {
		return custody.ErrDebitNotFound
	}
	d.State = state
	if refID != "" {
		d.RefID = refID
	}
	d.Touch()
	return nil
}

func (s *Store) GetDebit(_ context.Context, debitID id.DebitID) (*transfer.Debit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.debits[debitID.String()]; ok {
		return d, nil
	}
	return nil, custody.ErrDebitNotFound
}

func (s *Store) ListDebits(_ context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Debit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transfer.Debit, 0)
	for _, d := range s.debits {
		if d.UserID.String() != userID.String() {
			continue
		}
		if opts.Currency != "" && d.Currency != strings.ToLower(opts.Currency) {
			continue
		}
		if opts.Network != "" && d.Network != strings.ToLower(opts.Network) {
			continue
		}
		if opts.State != "" && d.State != opts.State {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ListCredits(_ context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transfer.Credit, 0)
	for _, c := range s.credits {
		if c.UserID.String() != userID.String() {
			continue
		}
		if opts.Currency != "" && c.Currency != strings.ToLower(opts.Currency) {
			continue
		}
		if opts.Network != "" && c.Network != strings.ToLower(opts.Network) {
			continue
		}
		if opts.State != "" && c.State != opts.State {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

// balanceLocked returns the balance row for (userID, currency), creating
// a zero row if none exists. Caller must hold the write lock.
func (s *Store) balanceLocked(userID id.UserID, currency string) *balance.Balance {
	key := balanceKey(userID, currency)
	if b, ok := s.balances[key]; ok {
		return b
	}
	b := balance.Zero(userID, currency)
	s.balances[key] = b
	return b
}

func balanceKey(userID id.UserID, currency string) string {
	return userID.String() + "|" + strings.ToLower(currency)
}

func addressKey(value, currency string) string {
	return value + "|" + strings.ToLower(currency)
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
