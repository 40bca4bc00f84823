package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	custody "github.com/xraph/custody"
	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	custodystore "github.com/xraph/custody/store"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// compile-time interface check
var _ custodystore.Store = (*Store)(nil)

// casRetries bounds the optimistic-concurrency retry loops.
const casRetries = 5

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("custody/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/sqlite: migration failed: %w", err)
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

	if _, err := s.sdb.NewInsert(toUserModel(user)).Exec(ctx); err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(toUserKeyModel(key)).Exec(ctx); err != nil {
		s.rollbackAccount(ctx, user.ID, id.Nil)
		return err
	}
	for _, b := range balances {
		if _, err := s.sdb.NewInsert(toBalanceModel(b)).Exec(ctx); err != nil {
			s.rollbackAccount(ctx, user.ID, key.ID)
			return err
		}
	}
	return nil
}

// rollbackAccount undoes a partially created account so registration
// stays all-or-nothing.
func (s *Store) rollbackAccount(ctx context.Context, userID id.UserID, keyID id.UserKeyID) {
	if !keyID.IsNil() {
		_, _ = s.sdb.NewDelete((*userKeyModel)(nil)). //nolint:errcheck // best-effort cleanup
								Where("id = ?", keyID.String()).
								Exec(ctx)
	}
	_, _ = s.sdb.NewDelete((*balanceModel)(nil)). //nolint:errcheck // best-effort cleanup
							Where("user_id = ?", userID.String()).
							Exec(ctx)
	_, _ = s.sdb.NewDelete((*userModel)(nil)). //nolint:errcheck // best-effort cleanup
							Where("id = ?", userID.String()).
							Exec(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, err
	}
	return s.hydrateUser(ctx, m)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*account.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, err
	}
	return s.hydrateUser(ctx, m)
}

func (s *Store) GetUserByKey(ctx context.Context, pubkey string) (*account.User, error) {
	k := new(userKeyModel)
	err := s.sdb.NewSelect(k).
		Where("key = ?", pubkey).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrUserNotFound
		}
		return nil, err
	}

	userID, err := id.ParseUserID(k.UserID)
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// hydrateUser attaches the user's keys to the loaded row.
func (s *Store) hydrateUser(ctx context.Context, m *userModel) (*account.User, error) {
	var keys []userKeyModel
	err := s.sdb.NewSelect(&keys).
		Where("user_id = ?", m.ID).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil && !isNoRows(err) {
		return nil, err
	}
	return fromUserModel(m, keys)
}

func (s *Store) ConsumeNonce(ctx context.Context, pubkey string, nonce int64) (int64, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		k := new(userKeyModel)
		err := s.sdb.NewSelect(k).
			Where("key = ?", pubkey).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return 0, custody.ErrUnknownIdentity
			}
			return 0, err
		}

		prior := k.LastNonce
		if nonce <= prior {
			return prior, custody.ErrReplayedNonce
		}

		res, err := s.sdb.NewUpdate((*userKeyModel)(nil)).
			Set("last_nonce = ?", nonce).
			Set("updated_at = ?", now()).
			Where("key = ?", pubkey).
			Where("last_nonce = ?", prior).
			Exec(ctx)
		if err != nil {
			return 0, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if rows > 0 {
			return prior, nil
		}
		// A concurrent request advanced the nonce first; reread.
	}
	return 0, custody.ErrLedgerUnavailable
}

// ==================== Balance Store ====================

func (s *Store) LatestBalance(ctx context.Context, userID id.UserID, currency string) (*balance.Balance, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID.String()).
		Where("currency = ?", currency).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrNotFound
		}
		return nil, err
	}
	return fromBalanceModel(m)
}

func (s *Store) ListBalances(ctx context.Context, userID id.UserID) ([]*balance.Balance, error) {
	var models []balanceModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		OrderExpr("currency ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
		m := new(balanceModel)
		err := s.sdb.NewSelect(m).
			Where("user_id = ?", userID.String()).
			Where("currency = ?", amount.Currency).
			Scan(ctx)
		if err != nil {
			if !isNoRows(err) {
				return nil, err
			}
			// First credit in this currency creates the row.
			b := balance.Zero(userID, amount.Currency)
			b.Total = amount
			b.Available = amount
			b.Reference = reference
			if _, insErr := s.sdb.NewInsert(toBalanceModel(b)).Exec(ctx); insErr != nil {
				// Lost the creation race; retry against the winner's row.
				continue
			}
			return b, nil
		}

		res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
			Set("total = ?", m.Total+amount.Amount).
			Set("available = ?", m.Available+amount.Amount).
			Set("reference = ?", reference).
			Set("version = ?", m.Version+1).
			Set("updated_at = ?", now()).
			Where("id = ?", m.ID).
			Where("version = ?", m.Version).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			m.Total += amount.Amount
			m.Available += amount.Amount
			m.Reference = reference
			m.Version++
			return fromBalanceModel(m)
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
	_, err := s.sdb.NewInsert(toAddressModel(a)).Exec(ctx)
	return err
}

func (s *Store) GetAddress(ctx context.Context, value, currency string) (*address.Address, error) {
	m := new(addressModel)
	err := s.sdb.NewSelect(m).
		Where("value = ?", value).
		Where("currency = ?", currency).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrAddressNotFound
		}
		return nil, err
	}
	return fromAddressModel(m)
}

func (s *Store) ListAddresses(ctx context.Context, userID id.UserID, opts address.ListOpts) ([]*address.Address, error) {
	var models []addressModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID.String())

	if opts.Value != "" {
		q = q.Where("value = ?", opts.Value)
	}
	if opts.Currency != "" {
		q = q.Where("currency = ?", opts.Currency)
	}
	if opts.Network != "" {
		q = q.Where("network = ?", opts.Network)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
		m := new(balanceModel)
		err := s.sdb.NewSelect(m).
			Where("user_id = ?", d.UserID.String()).
			Where("currency = ?", d.Debited.Currency).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return custody.ErrInsufficientFunds
			}
			return err
		}
		if m.Available < d.Debited.Amount {
			return custody.ErrInsufficientFunds
		}

		res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
			Set("total = ?", m.Total-d.Debited.Amount).
			Set("available = ?", m.Available-d.Debited.Amount).
			Set("version = ?", m.Version+1).
			Set("updated_at = ?", now()).
			Where("id = ?", m.ID).
			Where("version = ?", m.Version).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			// Lost the version race; reread and recheck funds.
			continue
		}

		if _, err := s.sdb.NewInsert(toDebitModel(d)).Exec(ctx); err != nil {
			// Restore the decrement so the balance is not debited
			// without a matching row. The version filter pins the
			// compensation to our own decrement; a concurrent credit
			// that landed in between moves the version past it and
			// must not be overwritten.
			_, _ = s.sdb.NewUpdate((*balanceModel)(nil)). //nolint:errcheck // best-effort compensation
									Set("total = ?", m.Total).
									Set("available = ?", m.Available).
									Set("version = ?", m.Version+2).
									Set("updated_at = ?", now()).
									Where("id = ?", m.ID).
									Where("version = ?", m.Version+1).
									Exec(ctx)
			return fmt.Errorf("custody/sqlite: record debit: %w: %w", err, custody.ErrLedgerUnavailable)
		}
		return nil
	}
	return custody.ErrLedgerUnavailable
}

func (s *Store) ApplyCredit(ctx context.Context, c *transfer.Credit) error {
	if _, err := s.CreditBalance(ctx, c.UserID, c.Amount, c.Reference); err != nil {
		return err
	}
	_, err := s.sdb.NewInsert(toCreditModel(c)).Exec(ctx)
	return err
}

func (s *Store) UpdateDebitState(ctx context.Context, debitID id.DebitID, state transfer.State, refID string) error {
	q := s.sdb.NewUpdate((*debitModel)(nil)).
		Set("state = ?", string(state)).
		Set("updated_at = ?", now())
	if refID != "" {
		q = q.Set("ref_id = ?", refID)
	}
	res, err := q.Where("id = ?", debitID.String()).Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return custody.ErrDebitNotFound
	}
	return nil
}

func (s *Store) GetDebit(ctx context.Context, debitID id.DebitID) (*transfer.Debit, error) {
	m := new(debitModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", debitID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, custody.ErrDebitNotFound
		}
		return nil, err
	}
	return fromDebitModel(m)
}

func (s *Store) ListDebits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Debit, error) {
	var models []debitModel
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID.String())

	if opts.Currency != "" {
		q = q.Where("currency = ?", opts.Currency)
	}
	if opts.Network != "" {
		q = q.Where("network = ?", opts.Network)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	q := s.sdb.NewSelect(&models).Where("user_id = ?", userID.String())

	if opts.Currency != "" {
		q = q.Where("currency = ?", opts.Currency)
	}
	if opts.Network != "" {
		q = q.Where("network = ?", opts.Network)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
