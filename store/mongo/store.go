package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Collection name constants.
const (
	colUsers     = "custody_users"
	colUserKeys  = "custody_user_keys"
	colBalances  = "custody_balances"
	colAddresses = "custody_addresses"
	colDebits    = "custody_debits"
	colCredits   = "custody_credits"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// casRetries bounds the optimistic-concurrency retry loops.
const casRetries = 5

// Store implements store.Store using MongoDB via Grove ORM.
//
// Balance and nonce updates serialize through conditional updates
// filtering on the previously observed version or nonce value.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all custody collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("custody/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, user *account.User, key *account.UserKey, balances []*balance.Balance) error {
	if _, err := s.GetUserByUsername(ctx, user.Username); err == nil {
		return custody.ErrAlreadyExists
	} else if !errors.Is(err, custody.ErrUserNotFound) {
		return err
	}
	if _, err := s.GetUserByKey(ctx, key.Key); err == nil {
		return custody.ErrAlreadyExists
	} else if !errors.Is(err, custody.ErrUserNotFound) {
		return err
	}

	if _, err := s.mdb.NewInsert(toUserModel(user)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: create user: %w", err)
	}
	if _, err := s.mdb.NewInsert(toUserKeyModel(key)).Exec(ctx); err != nil {
		s.rollbackAccount(ctx, user.ID, id.Nil)
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: create user key: %w", err)
	}
	for _, b := range balances {
		if _, err := s.mdb.NewInsert(toBalanceModel(b)).Exec(ctx); err != nil {
			s.rollbackAccount(ctx, user.ID, key.ID)
			return fmt.Errorf("custody/mongo: create balance: %w", err)
		}
	}
	return nil
}

// rollbackAccount undoes a partially created account so registration
// stays all-or-nothing.
func (s *Store) rollbackAccount(ctx context.Context, userID id.UserID, keyID id.UserKeyID) {
	if !keyID.IsNil() {
		_, _ = s.mdb.NewDelete((*userKeyModel)(nil)). //nolint:errcheck // best-effort cleanup
								Filter(bson.M{"_id": keyID.String()}).
								Exec(ctx)
	}
	_, _ = s.mdb.NewDelete((*balanceModel)(nil)). //nolint:errcheck // best-effort cleanup
							Filter(bson.M{"user_id": userID.String()}).
							Exec(ctx)
	_, _ = s.mdb.NewDelete((*userModel)(nil)). //nolint:errcheck // best-effort cleanup
							Filter(bson.M{"_id": userID.String()}).
							Exec(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get user: %w", err)
	}
	return s.hydrateUser(ctx, &m)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*account.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"username": username}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get user by username: %w", err)
	}
	return s.hydrateUser(ctx, &m)
}

func (s *Store) GetUserByKey(ctx context.Context, pubkey string) (*account.User, error) {
	var k userKeyModel
	err := s.mdb.NewFind(&k).
		Filter(bson.M{"key": pubkey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get user by key: %w", err)
	}

	userID, err := id.ParseUserID(k.UserID)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// hydrateUser attaches the user's keys to the loaded document.
func (s *Store) hydrateUser(ctx context.Context, m *userModel) (*account.User, error) {
	var keys []userKeyModel
	err := s.mdb.NewFind(&keys).
		Filter(bson.M{"user_id": m.ID}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil && !isNoDocuments(err) {
		return nil, fmt.Errorf("custody/mongo: load user keys: %w", err)
	}
	return fromUserModel(m, keys)
}

func (s *Store) ConsumeNonce(ctx context.Context, pubkey string, nonce int64) (int64, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var k userKeyModel
		err := s.mdb.NewFind(&k).
			Filter(bson.M{"key": pubkey}).
			Scan(ctx)
		if err != nil {
			if isNoDocuments(err) {
				return 0, custody.ErrUnknownIdentity
			}
			return 0, fmt.Errorf("custody/mongo: consume nonce: %w", err)
		}

		prior := k.LastNonce
		if nonce <= prior {
			return prior, custody.ErrReplayedNonce
		}

		res, err := s.mdb.NewUpdate((*userKeyModel)(nil)).
			Filter(bson.M{"key": pubkey, "last_nonce": prior}).
			Set("last_nonce", nonce).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("custody/mongo: advance nonce: %w", err)
		}
		if res.MatchedCount() > 0 {
			return prior, nil
		}
		// A concurrent request advanced the nonce first; reread.
	}
	return 0, custody.ErrLedgerUnavailable
}

// ==================== Balance Store ====================

func (s *Store) LatestBalance(ctx context.Context, userID id.UserID, currency string) (*balance.Balance, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID.String(), "currency": currency}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrNotFound
		}
		return nil, fmt.Errorf("custody/mongo: latest balance: %w", err)
	}
	return fromBalanceModel(&m)
}

func (s *Store) ListBalances(ctx context.Context, userID id.UserID) ([]*balance.Balance, error) {
	var models []balanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String()}).
		Sort(bson.D{{Key: "currency", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custody/mongo: list balances: %w", err)
	}

	result := make([]*balance.Balance, len(models))
	for i := range models {
		b, err := fromBalanceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}

func (s *Store) CreditBalance(ctx context.Context, userID id.UserID, amount types.Money, reference string) (*balance.Balance, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var m balanceModel
		err := s.mdb.NewFind(&m).
			Filter(bson.M{"user_id": userID.String(), "currency": amount.Currency}).
			Scan(ctx)
		if err != nil {
			if !isNoDocuments(err) {
				return nil, fmt.Errorf("custody/mongo: credit balance: %w", err)
			}
			// First credit in this currency creates the document.
			b := balance.Zero(userID, amount.Currency)
			b.Total = amount
			b.Available = amount
			b.Reference = reference
			if _, insErr := s.mdb.NewInsert(toBalanceModel(b)).Exec(ctx); insErr != nil {
				// Lost the creation race; retry against the winner's document.
				continue
			}
			return b, nil
		}

		res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
			Filter(bson.M{"_id": m.ID, "version": m.Version}).
			Set("total", m.Total+amount.Amount).
			Set("available", m.Available+amount.Amount).
			Set("reference", reference).
			Set("version", m.Version+1).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("custody/mongo: credit balance: %w", err)
		}
		if res.MatchedCount() > 0 {
			m.Total += amount.Amount
			m.Available += amount.Amount
			m.Reference = reference
			m.Version++
			return fromBalanceModel(&m)
		}
	}
	return nil, custody.ErrLedgerUnavailable
}

// ==================== Address Store ====================

func (s *Store) CreateAddress(ctx context.Context, a *address.Address) error {
	if _, err := s.GetAddress(ctx, a.Value, a.Currency); err == nil {
		return custody.ErrAlreadyExists
	} else if !errors.Is(err, custody.ErrAddressNotFound) {
		return err
	}
	_, err := s.mdb.NewInsert(toAddressModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return custody.ErrAlreadyExists
		}
		return fmt.Errorf("custody/mongo: create address: %w", err)
	}
	return nil
}

func (s *Store) GetAddress(ctx context.Context, value, currency string) (*address.Address, error) {
	var m addressModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"value": value, "currency": currency}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrAddressNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get address: %w", err)
	}
	return fromAddressModel(&m)
}

func (s *Store) ListAddresses(ctx context.Context, userID id.UserID, opts address.ListOpts) ([]*address.Address, error) {
	var models []addressModel

	filter := bson.M{"user_id": userID.String()}
	if opts.Value != "" {
		filter["value"] = opts.Value
	}
	if opts.Currency != "" {
		filter["currency"] = opts.Currency
	}
	if opts.Network != "" {
		filter["network"] = opts.Network
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list addresses: %w", err)
	}

	result := make([]*address.Address, len(models))
	for i := range models {
		a, err := fromAddressModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

// ==================== Transfer Store ====================

func (s *Store) ApplyDebit(ctx context.Context, d *transfer.Debit) error {
	for attempt := 0; attempt < casRetries; attempt++ {
		var m balanceModel
		err := s.mdb.NewFind(&m).
			Filter(bson.M{"user_id": d.UserID.String(), "currency": d.Debited.Currency}).
			Scan(ctx)
		if err != nil {
			if isNoDocuments(err) {
				return custody.ErrInsufficientFunds
			}
			return fmt.Errorf("custody/mongo: apply debit: %w", err)
		}
		if m.Available < d.Debited.Amount {
			return custody.ErrInsufficientFunds
		}

		res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
			Filter(bson.M{"_id": m.ID, "version": m.Version}).
			Set("total", m.Total-d.Debited.Amount).
			Set("available", m.Available-d.Debited.Amount).
			Set("version", m.Version+1).
			Set("updated_at", now()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("custody/mongo: apply debit: %w", err)
		}
		if res.MatchedCount() == 0 {
			// Lost the version race; reread and recheck funds.
			continue
		}

		if _, err := s.mdb.NewInsert(toDebitModel(d)).Exec(ctx); err != nil {
			// Restore the decrement so the balance is not debited
			// without a matching document. The version filter pins the
			// compensation to our own decrement; a concurrent credit
			// that landed in between moves the version past it and
			// must not be overwritten.
			_, _ = s.mdb.NewUpdate((*balanceModel)(nil)). //nolint:errcheck // best-effort compensation
									Filter(bson.M{"_id": m.ID, "version": m.Version + 1}).
									Set("total", m.Total).
									Set("available", m.Available).
									Set("version", m.Version+2).
									Set("updated_at", now()).
									Exec(ctx)
			return fmt.Errorf("custody/mongo: record debit: %w: %w", err, custody.ErrLedgerUnavailable)
		}
		return nil
	}
	return custody.ErrLedgerUnavailable
}

func (s *Store) ApplyCredit(ctx context.Context, c *transfer.Credit) error {
	if _, err := s.CreditBalance(ctx, c.UserID, c.Amount, c.Reference); err != nil {
		return err
	}
	_, err := s.mdb.NewInsert(toCreditModel(c)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/mongo: record credit: %w", err)
	}
	return nil
}

func (s *Store) UpdateDebitState(ctx context.Context, debitID id.DebitID, state transfer.State, refID string) error {
	q := s.mdb.NewUpdate((*debitModel)(nil)).
		Filter(bson.M{"_id": debitID.String()}).
		Set("state", string(state)).
		Set("updated_at", now())
	if refID != "" {
		q = q.Set("ref_id", refID)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("custody/mongo: update debit state: %w", err)
	}
	if res.MatchedCount() == 0 {
		return custody.ErrDebitNotFound
	}
	return nil
}

func (s *Store) GetDebit(ctx context.Context, debitID id.DebitID) (*transfer.Debit, error) {
	var m debitModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": debitID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, custody.ErrDebitNotFound
		}
		return nil, fmt.Errorf("custody/mongo: get debit: %w", err)
	}
	return fromDebitModel(&m)
}

func (s *Store) ListDebits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Debit, error) {
	var models []debitModel

	q := s.mdb.NewFind(&models).
		Filter(transferFilter(userID, opts)).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list debits: %w", err)
	}

	result := make([]*transfer.Debit, len(models))
	for i := range models {
		d, err := fromDebitModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

func (s *Store) ListCredits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Credit, error) {
	var models []creditModel

	q := s.mdb.NewFind(&models).
		Filter(transferFilter(userID, opts)).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custody/mongo: list credits: %w", err)
	}

	result := make([]*transfer.Credit, len(models))
	for i := range models {
		c, err := fromCreditModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// transferFilter builds the shared debit/credit list filter.
func transferFilter(userID id.UserID, opts transfer.ListOpts) bson.M {
	filter := bson.M{"user_id": userID.String()}
	if opts.Currency != "" {
		filter["currency"] = opts.Currency
	}
	if opts.Network != "" {
		filter["network"] = opts.Network
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}
	return filter
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all custody collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colUserKeys: {
			{
				Keys:    bson.D{{Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "currency", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colAddresses: {
			{
				Keys:    bson.D{{Key: "value", Value: 1}, {Key: "currency", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colDebits: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "currency", Value: 1}}},
			{Keys: bson.D{{Key: "state", Value: 1}}},
		},
		colCredits: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "currency", Value: 1}}},
		},
	}
}
