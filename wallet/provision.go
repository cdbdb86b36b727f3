package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/tarancss/stakewallet/lib/msg"
	"github.com/tarancss/stakewallet/lib/store"
)

// ErrValidation is wrapped by the errors returned for requests missing required fields.
var ErrValidation = errors.New("invalid request")

// UserResponse is returned when a user is created.
type UserResponse struct {
	ID int64 `json:"id"`
}

// CreateWalletRequest holds the fields to register a wallet. WalletType is a pointer so that a missing field can be
// told apart from an empty one.
type CreateWalletRequest struct {
	UserID     int64   `json:"user_id"`
	StakeKey   string  `json:"stake_key"`
	WalletType *string `json:"wallet_type"`
}

// Validate checks the required fields of the request.
func (r CreateWalletRequest) Validate() error {
	switch {
	case r.WalletType == nil:
		return fmt.Errorf("%w: wallet_type is required", ErrValidation)
	case r.StakeKey == "":
		return fmt.Errorf("%w: stake_key is required", ErrValidation)
	case r.UserID <= 0:
		return fmt.Errorf("%w: user_id must be a positive integer", ErrValidation)
	}

	return nil
}

// AddressRequest holds the payment address to attach to a wallet.
type AddressRequest struct {
	Address string `json:"address"`
}

// CreateUser creates a new user.
func (w *Wallet) CreateUser(ctx context.Context) (UserResponse, error) {
	u, err := w.db.CreateUser(ctx)
	if err != nil {
		return UserResponse{}, err
	}

	w.publish(msg.WalletEvent{Obj: msg.USER, Act: msg.CREATED, ID: u.ID, UserID: u.ID})

	return UserResponse{ID: u.ID}, nil
}

// DeleteUser deletes a user together with its wallets and their addresses.
func (w *Wallet) DeleteUser(ctx context.Context, id int64) error {
	if err := w.db.DeleteUser(ctx, id); err != nil {
		return err
	}

	w.publish(msg.WalletEvent{Obj: msg.USER, Act: msg.DELETED, ID: id, UserID: id})

	return nil
}

// CreateWallet registers a wallet for an existing user. The response carries the provisional state of a new wallet
// (inactive, zero balance and rewards); the indexer is not contacted. It returns an error wrapping ErrValidation
// before touching the store if the request is incomplete, and store.ErrForeignKey if the user does not exist.
func (w *Wallet) CreateWallet(ctx context.Context, req CreateWalletRequest) (WalletResponse, error) {
	if err := req.Validate(); err != nil {
		return WalletResponse{}, err
	}

	rec, err := w.db.CreateWallet(ctx, req.UserID, req.StakeKey, *req.WalletType)
	if err != nil {
		return WalletResponse{}, err
	}

	w.publish(msg.WalletEvent{
		Obj:        msg.WALLET,
		Act:        msg.CREATED,
		ID:         rec.ID,
		UserID:     rec.UserID,
		StakeKey:   rec.StakeKey,
		WalletType: rec.WalletType,
	})

	return WalletResponse{
		ID:         rec.ID,
		StakeKey:   rec.StakeKey,
		Active:     false,
		Balance:    "0",
		Rewards:    "0",
		WalletType: rec.WalletType,
	}, nil
}

// ListWallets returns the wallet records of a user. No lookups are made.
func (w *Wallet) ListWallets(ctx context.Context, userID int64) ([]store.Wallet, error) {
	return w.db.ListWallets(ctx, userID)
}

// AddAddress attaches a payment address to a wallet.
func (w *Wallet) AddAddress(ctx context.Context, walletID int64, req AddressRequest) (store.Address, error) {
	if req.Address == "" {
		return store.Address{}, fmt.Errorf("%w: address is required", ErrValidation)
	}

	return w.db.CreateAddress(ctx, walletID, req.Address)
}

// ListAddresses returns the payment addresses of a wallet.
func (w *Wallet) ListAddresses(ctx context.Context, walletID int64) ([]store.Address, error) {
	return w.db.ListAddresses(ctx, walletID)
}
