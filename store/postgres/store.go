package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// casRetries bounds the optimistic-concurrency retry loops. Exhausting
// it means the row is under heavy contention; the caller may retry.
const casRetries = 5

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Balance and nonce updates serialize through version-compare-and-swap
// conditional updates rather than long transactions.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("custody/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custody/postgres: migration failed: %w", err)
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
	// Pre-check conflicts so the common duplicate path returns the
	// sentinel instead of a driver error. The unique indexes on
	// username and key still close the race window.
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

	if _, err := s.pg.NewInsert(toUserModel(user)).Exec(ctx); err != nil {
		return err
	}
	if _, err := s.pg.NewInsert(toUserKeyModel(key)).Exec(ctx); err != nil {
		s.rollbackAccount(ctx, user.ID, id.Nil)
		return err
	}
	for _, b := range balances {
		if _, err := s.pg.NewInsert(toBalanceModel(b)).Exec(ctx); err != nil {
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
		_, _ = s.pg.NewDelete((*userKeyModel)(nil)). //nolint:errcheck // best-effort cleanup
								Where("id = $1", keyID.String()).
								Exec(ctx)
	}
	_, _ = s.pg.NewDelete((*balanceModel)(nil)). //nolint:errcheck // best-effort cleanup
							Where("user_id = $1", userID.String()).
							Exec(ctx)
	_, _ = s.pg.NewDelete((*userModel)(nil)). //nolint:errcheck // best-effort cleanup
							Where("id = $1", userID.String()).
							Exec(ctx)
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*account.User, error) {
	m := new(userModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", userID.String()).
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
	err := s.pg.NewSelect(m).
		Where("username = $1", username).
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
	err := s.pg.NewSelect(k).
		Where("key = $1", pubkey).
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
	err := s.pg.NewSelect(&keys).
		Where("user_id = $1", m.ID).
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
		err := s.pg.NewSelect(k).
			Where("key = $1", pubkey).
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

		res, err := s.pg.NewUpdate((*userKeyModel)(nil)).
			Set("last_nonce = $1", nonce).
			Set("updated_at = $2", now()).
			Where("key = $3", pubkey).
			Where("last_nonce = $4", prior).
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
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID.String()).
		Where("currency = $2", currency).
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
	err := s.pg.NewSelect(&models).
		Where("user_id = $1", userID.String()).
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
		err := s.pg.NewSelect(m).
			Where("user_id = $1", userID.String()).
			Where("currency = $2", amount.Currency).
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
			if _, insErr := s.pg.NewInsert(toBalanceModel(b)).Exec(ctx); insErr != nil {
				// Lost the creation race; retry against the winner's row.
				continue
			}
			return b, nil
		}

		res, err := s.pg.NewUpdate((*balanceModel)(nil)).
			Set("total = $1", m.Total+amount.Amount).
			Set("available = $2", m.Available+amount.Amount).
			Set("reference = $3", reference).
			Set("version = $4", m.Version+1).
			Set("updated_at = $5", now()).
			Where("id = $6", m.ID).
			Where("version = $7", m.Version).
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
	_, err := s.pg.NewInsert(toAddressModel(a)).Exec(ctx)
	return err
}

func (s *Store) GetAddress(ctx context.Context, value, currency string) (*address.Address, error) {
	m := new(addressModel)
	err := s.pg.NewSelect(m).
		Where("value = $1", value).
		Where("currency = $2", currency).
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
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID.String())

	argIdx := 1
	if opts.Value != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("value = $%d", argIdx), opts.Value)
	}
	if opts.Currency != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("currency = $%d", argIdx), opts.Currency)
	}
	if opts.Network != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("network = $%d", argIdx), opts.Network)
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
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
		err := s.pg.NewSelect(m).
			Where("user_id = $1", d.UserID.String()).
			Where("currency = $2", d.Debited.Currency).
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

		res, err := s.pg.NewUpdate((*balanceModel)(nil)).
			Set("total = $1", m.Total-d.Debited.Amount).
			Set("available = $2", m.Available-d.Debited.Amount).
			Set("version = $3", m.Version+1).
			Set("updated_at = $4", now()).
			Where("id = $5", m.ID).
			Where("version = $6", m.Version).
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

		if _, err := s.pg.NewInsert(toDebitModel(d)).Exec(ctx); err != nil {
			// Restore the decrement so the balance is not debited
			// without a matching row. The version filter pins the
			// compensation to our own decrement; a concurrent credit
			// that landed in between moves the version past it and
			// must not be overwritten.
			_, _ = s.pg.NewUpdate((*balanceModel)(nil)). //nolint:errcheck // best-effort compensation
									Set("total = $1", m.Total).
									Set("available = $2", m.Available).
									Set("version = $3", m.Version+2).
									Set("updated_at = $4", now()).
									Where("id = $5", m.ID).
									Where("version = $6", m.Version+1).
									Exec(ctx)
			return fmt.Errorf("custody/postgres: record debit: %w: %w", err, custody.ErrLedgerUnavailable)
		}
		return nil
	}
	return custody.ErrLedgerUnavailable
}

func (s *Store) ApplyCredit(ctx context.Context, c *transfer.Credit) error {
	if _, err := s.CreditBalance(ctx, c.UserID, c.Amount, c.Reference); err != nil {
		return err
	}
	_, err := s.pg.NewInsert(toCreditModel(c)).Exec(ctx)
	return err
}

func (s *Store) UpdateDebitState(ctx context.Context, debitID id.DebitID, state transfer.State, refID string) error {
	q := s.pg.NewUpdate((*debitModel)(nil)).
		Set("state = $1", string(state)).
		Set("updated_at = $2", now())

	argIdx := 2
	if refID != "" {
		argIdx++
		q = q.Set(fmt.Sprintf("ref_id = $%d", argIdx), refID)
	}
	argIdx++
	res, err := q.Where(fmt.Sprintf("id = $%d", argIdx), debitID.String()).Exec(ctx)
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
	err := s.pg.NewSelect(m).
		Where("id = $1", debitID.String()).
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
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID.String())

	argIdx := 1
	if opts.Currency != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("currency = $%d", argIdx), opts.Currency)
	}
	if opts.Network != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("network = $%d", argIdx), opts.Network)
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
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
	q := s.pg.NewSelect(&models).Where("user_id = $1", userID.String())

	argIdx := 1
	if opts.Currency != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("currency = $%d", argIdx), opts.Currency)
	}
	if opts.Network != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("network = $%d", argIdx), opts.Network)
	}
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
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
