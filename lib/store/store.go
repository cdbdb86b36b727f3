// Package store defines the interface for database implementations to the wallet service.
//
// Users own wallets and wallets own addresses. Implementations enforce both relations: creating a child of a missing
// parent fails with ErrForeignKey and persists nothing, and deleting a parent deletes its children.
package store

import (
	"context"
	"errors"
)

// DB defines required methods for the wallet service. Timestamps are set by the implementation.
type DB interface {
	// users
	CreateUser(ctx context.Context) (User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	// wallets
	CreateWallet(ctx context.Context, userID int64, stakeKey, walletType string) (Wallet, error)
	GetWallet(ctx context.Context, id int64) (Wallet, error)
	GetWalletByStakeKey(ctx context.Context, stakeKey string) (Wallet, error)
	ListWallets(ctx context.Context, userID int64) ([]Wallet, error)
	DeleteWallet(ctx context.Context, id int64) error
	// addresses
	CreateAddress(ctx context.Context, walletID int64, address string) (Address, error)
	ListAddresses(ctx context.Context, walletID int64) ([]Address, error)
	// schema
	Migrate(ctx context.Context) error
	Close() error
}

// Errors returned
var (
	ErrNotFound   = errors.New("record was not found in store")
	ErrForeignKey = errors.New("referenced record does not exist in store")
)
