package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/stakewallet/lib/store"
)

// ensure Sqlite satisfies the store interface
var _ store.DB = (*Sqlite)(nil)

func newTestDB(t *testing.T) *Sqlite {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := New(fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name), nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u1, err := db.CreateUser(ctx)
	require.NoError(t, err)
	u2, err := db.CreateUser(ctx)
	require.NoError(t, err)

	assert.Positive(t, u1.ID)
	assert.NotEqual(t, u1.ID, u2.ID)
	assert.False(t, u1.CreatedAt.IsZero())

	got, err := db.GetUser(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, u1.ID, got.ID)

	_, err = db.GetUser(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// migrating twice is harmless
	require.NoError(t, db.Migrate(ctx))
}

func TestWallets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx)
	require.NoError(t, err)

	w, err := db.CreateWallet(ctx, u.ID, "stake_test1uq0abc", "custodial")
	require.NoError(t, err)
	assert.Positive(t, w.ID)
	assert.Equal(t, u.ID, w.UserID)

	got, err := db.GetWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, "stake_test1uq0abc", got.StakeKey)
	assert.Equal(t, "custodial", got.WalletType)

	_, err = db.GetWallet(ctx, w.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)

	w2, err := db.CreateWallet(ctx, u.ID, "stake_test1uq0def", "external")
	require.NoError(t, err)

	ws, err := db.ListWallets(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, w.ID, ws[0].ID)
	assert.Equal(t, w2.ID, ws[1].ID)

	_, err = db.ListWallets(ctx, 9999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	other, err := db.CreateUser(ctx)
	require.NoError(t, err)
	ws, err = db.ListWallets(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func TestCreateWalletMissingUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.CreateWallet(ctx, 42, "stake_test1orphan", "custodial")
	assert.ErrorIs(t, err, store.ErrForeignKey)

	// nothing was persisted
	_, err = db.GetWalletByStakeKey(ctx, "stake_test1orphan")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var n int64
	require.NoError(t, db.db.Model(&wallet{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGetWalletByStakeKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx)
	require.NoError(t, err)

	first, err := db.CreateWallet(ctx, u.ID, "stake_test1Key", "custodial")
	require.NoError(t, err)

	got, err := db.GetWalletByStakeKey(ctx, "stake_test1Key")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// lookups are exact and case sensitive
	for _, key := range []string{"stake_test1key", "STAKE_TEST1KEY", "stake_test1Ke", " stake_test1Key", ""} {
		_, err = db.GetWalletByStakeKey(ctx, key)
		assert.ErrorIs(t, err, store.ErrNotFound, key)
	}

	// the latest registration of a key wins
	second, err := db.CreateWallet(ctx, u.ID, "stake_test1Key", "external")
	require.NoError(t, err)

	got, err = db.GetWalletByStakeKey(ctx, "stake_test1Key")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "external", got.WalletType)
}

func TestAddresses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx)
	require.NoError(t, err)
	w, err := db.CreateWallet(ctx, u.ID, "stake_test1addr", "custodial")
	require.NoError(t, err)

	a1, err := db.CreateAddress(ctx, w.ID, "addr_test1qa")
	require.NoError(t, err)
	a2, err := db.CreateAddress(ctx, w.ID, "addr_test1qb")
	require.NoError(t, err)

	as, err := db.ListAddresses(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, as, 2)
	assert.Equal(t, a1.ID, as[0].ID)
	assert.Equal(t, "addr_test1qa", as[0].Address)
	assert.Equal(t, a2.ID, as[1].ID)
	assert.Equal(t, w.ID, as[1].WalletID)

	_, err = db.CreateAddress(ctx, w.ID+100, "addr_test1orphan")
	assert.ErrorIs(t, err, store.ErrForeignKey)

	_, err = db.ListAddresses(ctx, w.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := db.CreateUser(ctx)
	require.NoError(t, err)
	keep, err := db.CreateUser(ctx)
	require.NoError(t, err)

	w1, err := db.CreateWallet(ctx, u.ID, "stake_test1a", "custodial")
	require.NoError(t, err)
	w2, err := db.CreateWallet(ctx, u.ID, "stake_test1b", "custodial")
	require.NoError(t, err)
	kw, err := db.CreateWallet(ctx, keep.ID, "stake_test1c", "external")
	require.NoError(t, err)

	for _, w := range []int64{w1.ID, w2.ID, kw.ID} {
		_, err = db.CreateAddress(ctx, w, fmt.Sprintf("addr_test1_%d", w))
		require.NoError(t, err)
	}

	// deleting a wallet removes its addresses only
	require.NoError(t, db.DeleteWallet(ctx, w2.ID))
	_, err = db.GetWallet(ctx, w2.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, db.DeleteWallet(ctx, w2.ID), store.ErrNotFound)

	var n int64
	require.NoError(t, db.db.Model(&address{}).Where("wallet_id = ?", w2.ID).Count(&n).Error)
	assert.Zero(t, n)

	// deleting a user removes its wallets and their addresses
	require.NoError(t, db.DeleteUser(ctx, u.ID))

	_, err = db.GetUser(ctx, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.GetWallet(ctx, w1.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, db.db.Model(&address{}).Where("wallet_id = ?", w1.ID).Count(&n).Error)
	assert.Zero(t, n)

	assert.ErrorIs(t, db.DeleteUser(ctx, u.ID), store.ErrNotFound)

	// other users are untouched
	ws, err := db.ListWallets(ctx, keep.ID)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	as, err := db.ListAddresses(ctx, kw.ID)
	require.NoError(t, err)
	assert.Len(t, as, 1)
}

func TestContextCanceled(t *testing.T) {
	db := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.CreateUser(ctx)
	assert.Error(t, err)
}
