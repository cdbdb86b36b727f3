package store

import "time"

// User is the owner of wallets. It carries no data of its own yet.
type User struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Wallet is a Cardano wallet of a user. StakeKey is the stake credential used for account lookups and is stored as
// given, WalletType tags how the wallet is held (ie. custodial, external).
type Wallet struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	StakeKey   string    `json:"stake_key"`
	WalletType string    `json:"wallet_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Address is a payment address belonging to a wallet.
type Address struct {
	ID        int64     `json:"id"`
	WalletID  int64     `json:"wallet_id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
