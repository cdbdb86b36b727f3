// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/store"
)

// foreign_key_violation
const fkViolation pq.ErrorCode = "23503"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS wallets (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	stake_key   TEXT NOT NULL,
	wallet_type TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_wallets_user_id ON wallets(user_id);
CREATE INDEX IF NOT EXISTS idx_wallets_stake_key ON wallets(stake_key);
CREATE TABLE IF NOT EXISTS addresses (
	id         BIGSERIAL PRIMARY KEY,
	wallet_id  BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
	address    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_addresses_wallet_id ON addresses(wallet_id);
`

const walletColumns = "id, user_id, stake_key, wallet_type, created_at, updated_at"

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db  *sql.DB
	log *zap.Logger
}

// New returns a postgres client connection to the specified database in 'connection'.
func New(connection string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	return &Postgres{db: db, log: log.With(zap.String("component", "store"), zap.String("db", "postgresql"))}, nil
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate creates the tables and indexes if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	p.log.Debug("migrating schema")

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}

	return nil
}

func (p *Postgres) CreateUser(ctx context.Context) (u store.User, err error) {
	err = p.db.QueryRowContext(ctx, "INSERT INTO users DEFAULT VALUES RETURNING id, created_at, updated_at").
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return store.User{}, fmt.Errorf("postgres: create user: %w", err)
	}

	return u, nil
}

func (p *Postgres) GetUser(ctx context.Context, id int64) (u store.User, err error) {
	err = p.db.QueryRowContext(ctx, "SELECT id, created_at, updated_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return store.User{}, translate("get user", err)
	}

	return u, nil
}

// DeleteUser deletes the user; wallets and addresses go with it through ON DELETE CASCADE.
func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	return p.delete(ctx, "DELETE FROM users WHERE id = $1", id, "delete user")
}

func (p *Postgres) CreateWallet(ctx context.Context, userID int64, stakeKey, walletType string) (w store.Wallet, err error) {
	err = p.db.QueryRowContext(ctx,
		"INSERT INTO wallets (user_id, stake_key, wallet_type) VALUES ($1, $2, $3) RETURNING "+walletColumns,
		userID, stakeKey, walletType).Scan(&w.ID, &w.UserID, &w.StakeKey, &w.WalletType, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return store.Wallet{}, translate("create wallet", err)
	}

	return w, nil
}

func (p *Postgres) GetWallet(ctx context.Context, id int64) (store.Wallet, error) {
	return p.wallet(ctx, "get wallet", "SELECT "+walletColumns+" FROM wallets WHERE id = $1", id)
}

// GetWalletByStakeKey returns the latest wallet registered with stakeKey.
func (p *Postgres) GetWalletByStakeKey(ctx context.Context, stakeKey string) (store.Wallet, error) {
	return p.wallet(ctx, "get wallet by stake key",
		"SELECT "+walletColumns+" FROM wallets WHERE stake_key = $1 ORDER BY id DESC LIMIT 1", stakeKey)
}

func (p *Postgres) wallet(ctx context.Context, op, query string, arg interface{}) (w store.Wallet, err error) {
	err = p.db.QueryRowContext(ctx, query, arg).
		Scan(&w.ID, &w.UserID, &w.StakeKey, &w.WalletType, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return store.Wallet{}, translate(op, err)
	}

	return w, nil
}

func (p *Postgres) ListWallets(ctx context.Context, userID int64) ([]store.Wallet, error) {
	if err := p.exists(ctx, "users", userID, "list wallets"); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, "SELECT "+walletColumns+" FROM wallets WHERE user_id = $1 ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets: %w", err)
	}
	defer rows.Close()

	ws := []store.Wallet{}

	for rows.Next() {
		var w store.Wallet
		if err = rows.Scan(&w.ID, &w.UserID, &w.StakeKey, &w.WalletType, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list wallets: %w", err)
		}

		ws = append(ws, w)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list wallets: %w", err)
	}

	return ws, nil
}

// DeleteWallet deletes the wallet and, through ON DELETE CASCADE, its addresses.
func (p *Postgres) DeleteWallet(ctx context.Context, id int64) error {
	return p.delete(ctx, "DELETE FROM wallets WHERE id = $1", id, "delete wallet")
}

func (p *Postgres) CreateAddress(ctx context.Context, walletID int64, address string) (a store.Address, err error) {
	err = p.db.QueryRowContext(ctx,
		"INSERT INTO addresses (wallet_id, address) VALUES ($1, $2) RETURNING id, wallet_id, address, created_at, updated_at",
		walletID, address).Scan(&a.ID, &a.WalletID, &a.Address, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return store.Address{}, translate("create address", err)
	}

	return a, nil
}

func (p *Postgres) ListAddresses(ctx context.Context, walletID int64) ([]store.Address, error) {
	if err := p.exists(ctx, "wallets", walletID, "list addresses"); err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		"SELECT id, wallet_id, address, created_at, updated_at FROM addresses WHERE wallet_id = $1 ORDER BY id", walletID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list addresses: %w", err)
	}
	defer rows.Close()

	as := []store.Address{}

	for rows.Next() {
		var a store.Address
		if err = rows.Scan(&a.ID, &a.WalletID, &a.Address, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: list addresses: %w", err)
		}

		as = append(as, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list addresses: %w", err)
	}

	return as, nil
}

func (p *Postgres) delete(ctx context.Context, query string, id int64, op string) error {
	res, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}

	if n == 0 {
		return store.ErrNotFound
	}

	return nil
}

// exists returns store.ErrNotFound if table has no row with id. table is always a constant.
func (p *Postgres) exists(ctx context.Context, table string, id int64, op string) error {
	var ok bool

	err := p.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&ok)
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}

	if !ok {
		return store.ErrNotFound
	}

	return nil
}

// translate maps driver errors to the store errors.
func translate(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == fkViolation {
		return store.ErrForeignKey
	}

	return fmt.Errorf("postgres: %s: %w", op, err)
}
