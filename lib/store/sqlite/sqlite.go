// Package sqlite implements the store interface for SQLite using gorm and a pure Go driver. It is the default store
// for single instance deployments and the one used by tests.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tarancss/stakewallet/lib/store"
)

// Sqlite implements a connection to a SQLite database.
type Sqlite struct {
	db  *gorm.DB
	log *zap.Logger
}

type user struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Wallets   []wallet `gorm:"constraint:OnDelete:CASCADE"`
}

func (user) TableName() string { return "users" }

type wallet struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	UserID     int64  `gorm:"not null;index"`
	StakeKey   string `gorm:"not null;index"`
	WalletType string `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Addresses  []address `gorm:"constraint:OnDelete:CASCADE"`
}

func (wallet) TableName() string { return "wallets" }

type address struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	WalletID  int64  `gorm:"not null;index"`
	Address   string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (address) TableName() string { return "addresses" }

func (u user) toStore() store.User {
	return store.User{ID: u.ID, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func (w wallet) toStore() store.Wallet {
	return store.Wallet{
		ID:         w.ID,
		UserID:     w.UserID,
		StakeKey:   w.StakeKey,
		WalletType: w.WalletType,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

func (a address) toStore() store.Address {
	return store.Address{ID: a.ID, WalletID: a.WalletID, Address: a.Address, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

// New opens the SQLite database in dsn (ie. file:wallet.db?_pragma=foreign_keys(1)). For an in-memory database use
// file:<name>?mode=memory&cache=shared. SQLite serializes writers, so a single connection is kept open.
func New(dsn string, log *zap.Logger) (*Sqlite, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite DB in %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("cannot open sqlite DB in %s: %w", dsn, err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err = db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("cannot enable foreign keys: %w", err)
	}

	return &Sqlite{db: db, log: log.With(zap.String("component", "store"), zap.String("db", "sqlite"))}, nil
}

// Migrate creates the users, wallets and addresses tables if they do not exist.
func (s *Sqlite) Migrate(ctx context.Context) error {
	s.log.Debug("migrating schema")

	if err := s.db.WithContext(ctx).AutoMigrate(&user{}, &wallet{}, &address{}); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}

	return nil
}

// Close will close the database connection. Must be called at termination time.
func (s *Sqlite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// CreateUser inserts a new user.
func (s *Sqlite) CreateUser(ctx context.Context) (store.User, error) {
	var u user
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return store.User{}, fmt.Errorf("sqlite: create user: %w", err)
	}

	return u.toStore(), nil
}

// GetUser returns the user with id.
func (s *Sqlite) GetUser(ctx context.Context, id int64) (store.User, error) {
	var u user
	if err := s.db.WithContext(ctx).Take(&u, id).Error; err != nil {
		return store.User{}, notFound("get user", err)
	}

	return u.toStore(), nil
}

// DeleteUser deletes the user with id, its wallets and their addresses in a single transaction.
func (s *Sqlite) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []int64
		if err := tx.Model(&wallet{}).Where("user_id = ?", id).Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("sqlite: delete user: %w", err)
		}

		if err := deleteWallets(tx, ids); err != nil {
			return fmt.Errorf("sqlite: delete user: %w", err)
		}

		res := tx.Delete(&user{}, id)
		if res.Error != nil {
			return fmt.Errorf("sqlite: delete user: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}

		return nil
	})
}

// CreateWallet inserts a wallet for userID. It fails with store.ErrForeignKey if the user does not exist.
func (s *Sqlite) CreateWallet(ctx context.Context, userID int64, stakeKey, walletType string) (store.Wallet, error) {
	w := wallet{UserID: userID, StakeKey: stakeKey, WalletType: walletType}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &user{}, userID); err != nil {
			return err
		}

		return tx.Create(&w).Error
	})
	if err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return store.Wallet{}, err
		}

		return store.Wallet{}, fmt.Errorf("sqlite: create wallet: %w", err)
	}

	return w.toStore(), nil
}

// GetWallet returns the wallet with id.
func (s *Sqlite) GetWallet(ctx context.Context, id int64) (store.Wallet, error) {
	var w wallet
	if err := s.db.WithContext(ctx).Take(&w, id).Error; err != nil {
		return store.Wallet{}, notFound("get wallet", err)
	}

	return w.toStore(), nil
}

// GetWalletByStakeKey returns the wallet with the exact stakeKey. If the key was registered more than once, the
// latest wallet is returned.
func (s *Sqlite) GetWalletByStakeKey(ctx context.Context, stakeKey string) (store.Wallet, error) {
	var w wallet

	err := s.db.WithContext(ctx).Where("stake_key = ?", stakeKey).Order("id DESC").Take(&w).Error
	if err != nil {
		return store.Wallet{}, notFound("get wallet by stake key", err)
	}

	return w.toStore(), nil
}

// ListWallets returns the wallets of userID ordered by id.
func (s *Sqlite) ListWallets(ctx context.Context, userID int64) ([]store.Wallet, error) {
	var ws []wallet

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &user{}, userID); err != nil {
			return err
		}

		return tx.Where("user_id = ?", userID).Order("id").Find(&ws).Error
	})
	if err != nil {
		return nil, parent("list wallets", err)
	}

	ret := make([]store.Wallet, 0, len(ws))
	for _, w := range ws {
		ret = append(ret, w.toStore())
	}

	return ret, nil
}

// DeleteWallet deletes the wallet with id and its addresses.
func (s *Sqlite) DeleteWallet(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &wallet{}, id); err != nil {
			if errors.Is(err, store.ErrForeignKey) {
				return store.ErrNotFound
			}

			return err
		}

		if err := deleteWallets(tx, []int64{id}); err != nil {
			return fmt.Errorf("sqlite: delete wallet: %w", err)
		}

		return nil
	})
}

// CreateAddress inserts an address for walletID. It fails with store.ErrForeignKey if the wallet does not exist.
func (s *Sqlite) CreateAddress(ctx context.Context, walletID int64, addr string) (store.Address, error) {
	a := address{WalletID: walletID, Address: addr}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &wallet{}, walletID); err != nil {
			return err
		}

		return tx.Create(&a).Error
	})
	if err != nil {
		if errors.Is(err, store.ErrForeignKey) {
			return store.Address{}, err
		}

		return store.Address{}, fmt.Errorf("sqlite: create address: %w", err)
	}

	return a.toStore(), nil
}

// ListAddresses returns the addresses of walletID ordered by id.
func (s *Sqlite) ListAddresses(ctx context.Context, walletID int64) ([]store.Address, error) {
	var as []address

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := exists(tx, &wallet{}, walletID); err != nil {
			return err
		}

		return tx.Where("wallet_id = ?", walletID).Order("id").Find(&as).Error
	})
	if err != nil {
		return nil, parent("list addresses", err)
	}

	ret := make([]store.Address, 0, len(as))
	for _, a := range as {
		ret = append(ret, a.toStore())
	}

	return ret, nil
}

// exists returns store.ErrForeignKey if no row of model has id.
func exists(tx *gorm.DB, model interface{}, id int64) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}

	if n == 0 {
		return store.ErrForeignKey
	}

	return nil
}

// deleteWallets deletes the addresses of the wallets in ids and then the wallets.
func deleteWallets(tx *gorm.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if err := tx.Where("wallet_id IN ?", ids).Delete(&address{}).Error; err != nil {
		return err
	}

	return tx.Where("id IN ?", ids).Delete(&wallet{}).Error
}

func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}

	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// parent maps a missing parent on a list operation to store.ErrNotFound.
func parent(op string, err error) error {
	if errors.Is(err, store.ErrForeignKey) {
		return store.ErrNotFound
	}

	return fmt.Errorf("sqlite: %s: %w", op, err)
}
