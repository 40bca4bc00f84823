package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Custody store.
var Migrations = migrate.NewGroup("custody")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_custody_users",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_users (
    id         TEXT PRIMARY KEY,
    username   TEXT NOT NULL DEFAULT '',
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_users_username ON custody_users (username);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_users`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_user_keys",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_user_keys (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    key        TEXT NOT NULL DEFAULT '',
    last_nonce BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_user_keys_key ON custody_user_keys (key);
CREATE INDEX IF NOT EXISTS idx_custody_user_keys_user ON custody_user_keys (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_user_keys`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_balances",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_balances (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL DEFAULT '',
    total      BIGINT NOT NULL DEFAULT 0,
    available  BIGINT NOT NULL DEFAULT 0,
    reference  TEXT NOT NULL DEFAULT '',
    version    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT custody_balances_non_negative CHECK (available >= 0 AND total >= available)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_balances_user_currency ON custody_balances (user_id, currency);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_addresses",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_addresses (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    value      TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL DEFAULT '',
    network    TEXT NOT NULL DEFAULT '',
    state      TEXT NOT NULL DEFAULT 'active',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_custody_addresses_value_currency ON custody_addresses (value, currency);
CREATE INDEX IF NOT EXISTS idx_custody_addresses_user ON custody_addresses (user_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_addresses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_debits",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_debits (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    amount     BIGINT NOT NULL DEFAULT 0,
    debited    BIGINT NOT NULL DEFAULT 0,
    fee        BIGINT NOT NULL DEFAULT 0,
    address    TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL DEFAULT '',
    network    TEXT NOT NULL DEFAULT '',
    state      TEXT NOT NULL DEFAULT 'unconfirmed',
    reference  TEXT NOT NULL DEFAULT '',
    ref_id     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_custody_debits_user ON custody_debits (user_id, currency);
CREATE INDEX IF NOT EXISTS idx_custody_debits_state ON custody_debits (state);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_debits`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_custody_credits",
			Version: "20240101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS custody_credits (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL DEFAULT '',
    amount     BIGINT NOT NULL DEFAULT 0,
    address    TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL DEFAULT '',
    network    TEXT NOT NULL DEFAULT '',
    state      TEXT NOT NULL DEFAULT 'complete',
    reference  TEXT NOT NULL DEFAULT '',
    ref_id     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_custody_credits_user ON custody_credits (user_id, currency);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS custody_credits`)
				return err
			},
		},
	)
}
