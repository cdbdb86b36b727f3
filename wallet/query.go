package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block/types"
	"github.com/tarancss/stakewallet/lib/store"
)

// ErrUpstreamUnavailable is returned when the account state of a wallet could not be obtained from the indexer. The
// underlying *types.LookupError is wrapped as well.
var ErrUpstreamUnavailable = errors.New("account data is unavailable upstream")

// WalletResponse is a wallet record merged with the live state of its stake account.
type WalletResponse struct {
	ID         int64  `json:"id"`
	StakeKey   string `json:"stake_key"`
	Active     bool   `json:"active"`
	Balance    string `json:"balance"`
	Rewards    string `json:"rewards"`
	WalletType string `json:"wallet_type"`
}

// GetWalletData returns the wallet with id and the current state of its stake account. It returns store.ErrNotFound
// without contacting the indexer if there is no such wallet, and ErrUpstreamUnavailable if the lookup fails.
func (w *Wallet) GetWalletData(ctx context.Context, id int64) (WalletResponse, error) {
	rec, err := w.db.GetWallet(ctx, id)
	if err != nil {
		return WalletResponse{}, err
	}

	return w.withAccount(ctx, rec)
}

// GetWalletByStakeKey is GetWalletData for the wallet registered with stakeKey.
func (w *Wallet) GetWalletByStakeKey(ctx context.Context, stakeKey string) (WalletResponse, error) {
	rec, err := w.db.GetWalletByStakeKey(ctx, stakeKey)
	if err != nil {
		return WalletResponse{}, err
	}

	return w.withAccount(ctx, rec)
}

// withAccount looks up the stake account of rec once and merges it into the response.
func (w *Wallet) withAccount(ctx context.Context, rec store.Wallet) (WalletResponse, error) {
	start := time.Now()
	acc, err := w.bc.AccountInfo(ctx, rec.StakeKey)
	w.m.lookup(err, time.Since(start))

	if err != nil {
		fields := []zap.Field{zap.Int64("wallet", rec.ID), zap.String("stake_key", rec.StakeKey), zap.Error(err)}

		var le *types.LookupError
		if errors.As(err, &le) {
			fields = append(fields, zap.Stringer("kind", le.Kind), zap.Int("status", le.Status))
		}

		w.log.Warn("account lookup failed", fields...)

		return WalletResponse{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return WalletResponse{
		ID:         rec.ID,
		StakeKey:   rec.StakeKey,
		Active:     acc.Active,
		Balance:    acc.ControlledAmount,
		Rewards:    acc.RewardsSum,
		WalletType: rec.WalletType,
	}, nil
}
