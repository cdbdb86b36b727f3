// Package mongo implements the store interface for MongoDB.
//
// Records keep the integer ids of the other stores; they are drawn from a counters collection. Parent checks and
// cascading deletes are done by the client in sequence, without a multi-document transaction, so a concurrent delete
// of a parent may leave an orphan child behind.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/store"
)

// DefaultDatabase is the database used when none is given to New.
const DefaultDatabase = "stakewallet"

const (
	colUsers     = "users"
	colWallets   = "wallets"
	colAddresses = "addresses"
	colCounters  = "counters"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c   *mgo.Client
	db  *mgo.Database
	log *zap.Logger
}

type userDoc struct {
	ID        int64     `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type walletDoc struct {
	ID         int64     `bson:"_id"`
	UserID     int64     `bson:"user_id"`
	StakeKey   string    `bson:"stake_key"`
	WalletType string    `bson:"wallet_type"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

type addressDoc struct {
	ID        int64     `bson:"_id"`
	WalletID  int64     `bson:"wallet_id"`
	Address   string    `bson:"address"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New returns a Mongo client connection to the specified MongoDB database uri. An empty database selects
// DefaultDatabase.
func New(uri, database string, log *zap.Logger) (*Mongo, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if database == "" {
		database = DefaultDatabase
	}

	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if err = c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{
		c:   c,
		db:  c.Database(database),
		log: log.With(zap.String("component", "store"), zap.String("db", "mongodb")),
	}, nil
}

// Close will close a database connection. Must be called at termination time.
func (m *Mongo) Close() error {
	return m.c.Disconnect(context.Background())
}

// Migrate creates the lookup indexes.
func (m *Mongo) Migrate(ctx context.Context) error {
	m.log.Debug("creating indexes")

	idx := map[string][]string{
		colWallets:   {"user_id", "stake_key"},
		colAddresses: {"wallet_id"},
	}

	for col, keys := range idx {
		models := make([]mgo.IndexModel, 0, len(keys))
		for _, k := range keys {
			models = append(models, mgo.IndexModel{Keys: bson.D{{Key: k, Value: 1}}})
		}

		if _, err := m.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s: %w", col, err)
		}
	}

	return nil
}

// nextID returns the next id of the sequence name.
func (m *Mongo) nextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}

	err := m.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("mongo: next %s id: %w", name, err)
	}

	return doc.Seq, nil
}

func now() time.Time {
	// mongo stores milliseconds
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (m *Mongo) CreateUser(ctx context.Context) (store.User, error) {
	id, err := m.nextID(ctx, colUsers)
	if err != nil {
		return store.User{}, err
	}

	t := now()
	u := userDoc{ID: id, CreatedAt: t, UpdatedAt: t}

	if _, err = m.db.Collection(colUsers).InsertOne(ctx, u); err != nil {
		return store.User{}, fmt.Errorf("mongo: create user: %w", err)
	}

	return store.User{ID: u.ID, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}, nil
}

func (m *Mongo) GetUser(ctx context.Context, id int64) (store.User, error) {
	var u userDoc
	if err := m.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return store.User{}, notFound("get user", err)
	}

	return store.User{ID: u.ID, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}, nil
}

// DeleteUser deletes the addresses of the user's wallets, the wallets and finally the user.
func (m *Mongo) DeleteUser(ctx context.Context, id int64) error {
	if err := m.exists(ctx, colUsers, id); err != nil {
		return notFound("delete user", err)
	}

	ws, err := m.walletIDs(ctx, id)
	if err != nil {
		return fmt.Errorf("mongo: delete user: %w", err)
	}

	if err = m.deleteWallets(ctx, ws); err != nil {
		return fmt.Errorf("mongo: delete user: %w", err)
	}

	res, err := m.db.Collection(colUsers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo: delete user: %w", err)
	}

	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}

	return nil
}

func (m *Mongo) CreateWallet(ctx context.Context, userID int64, stakeKey, walletType string) (store.Wallet, error) {
	if err := m.exists(ctx, colUsers, userID); err != nil {
		return store.Wallet{}, foreignKey("create wallet", err)
	}

	id, err := m.nextID(ctx, colWallets)
	if err != nil {
		return store.Wallet{}, err
	}

	t := now()
	w := walletDoc{ID: id, UserID: userID, StakeKey: stakeKey, WalletType: walletType, CreatedAt: t, UpdatedAt: t}

	if _, err = m.db.Collection(colWallets).InsertOne(ctx, w); err != nil {
		return store.Wallet{}, fmt.Errorf("mongo: create wallet: %w", err)
	}

	return w.wallet(), nil
}

func (m *Mongo) GetWallet(ctx context.Context, id int64) (store.Wallet, error) {
	var w walletDoc
	if err := m.db.Collection(colWallets).FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		return store.Wallet{}, notFound("get wallet", err)
	}

	return w.wallet(), nil
}

// GetWalletByStakeKey returns the latest wallet registered with stakeKey.
func (m *Mongo) GetWalletByStakeKey(ctx context.Context, stakeKey string) (store.Wallet, error) {
	var w walletDoc

	err := m.db.Collection(colWallets).FindOne(ctx, bson.M{"stake_key": stakeKey},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})).Decode(&w)
	if err != nil {
		return store.Wallet{}, notFound("get wallet by stake key", err)
	}

	return w.wallet(), nil
}

func (m *Mongo) ListWallets(ctx context.Context, userID int64) ([]store.Wallet, error) {
	if err := m.exists(ctx, colUsers, userID); err != nil {
		return nil, notFound("list wallets", err)
	}

	cur, err := m.db.Collection(colWallets).Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list wallets: %w", err)
	}
	defer cur.Close(ctx)

	ws := []store.Wallet{}

	for cur.Next(ctx) {
		var w walletDoc
		if err = cur.Decode(&w); err != nil {
			return nil, fmt.Errorf("mongo: list wallets: %w", err)
		}

		ws = append(ws, w.wallet())
	}

	if err = cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: list wallets: %w", err)
	}

	return ws, nil
}

func (m *Mongo) DeleteWallet(ctx context.Context, id int64) error {
	if err := m.exists(ctx, colWallets, id); err != nil {
		return notFound("delete wallet", err)
	}

	if err := m.deleteWallets(ctx, []int64{id}); err != nil {
		return fmt.Errorf("mongo: delete wallet: %w", err)
	}

	return nil
}

func (m *Mongo) CreateAddress(ctx context.Context, walletID int64, address string) (store.Address, error) {
	if err := m.exists(ctx, colWallets, walletID); err != nil {
		return store.Address{}, foreignKey("create address", err)
	}

	id, err := m.nextID(ctx, colAddresses)
	if err != nil {
		return store.Address{}, err
	}

	t := now()
	a := addressDoc{ID: id, WalletID: walletID, Address: address, CreatedAt: t, UpdatedAt: t}

	if _, err = m.db.Collection(colAddresses).InsertOne(ctx, a); err != nil {
		return store.Address{}, fmt.Errorf("mongo: create address: %w", err)
	}

	return a.address(), nil
}

func (m *Mongo) ListAddresses(ctx context.Context, walletID int64) ([]store.Address, error) {
	if err := m.exists(ctx, colWallets, walletID); err != nil {
		return nil, notFound("list addresses", err)
	}

	cur, err := m.db.Collection(colAddresses).Find(ctx, bson.M{"wallet_id": walletID},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list addresses: %w", err)
	}
	defer cur.Close(ctx)

	as := []store.Address{}

	for cur.Next(ctx) {
		var a addressDoc
		if err = cur.Decode(&a); err != nil {
			return nil, fmt.Errorf("mongo: list addresses: %w", err)
		}

		as = append(as, a.address())
	}

	if err = cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: list addresses: %w", err)
	}

	return as, nil
}

func (w walletDoc) wallet() store.Wallet {
	return store.Wallet{
		ID:         w.ID,
		UserID:     w.UserID,
		StakeKey:   w.StakeKey,
		WalletType: w.WalletType,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

func (a addressDoc) address() store.Address {
	return store.Address{ID: a.ID, WalletID: a.WalletID, Address: a.Address, CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt}
}

// exists returns mgo.ErrNoDocuments if col has no document with id.
func (m *Mongo) exists(ctx context.Context, col string, id int64) error {
	n, err := m.db.Collection(col).CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}

	if n == 0 {
		return mgo.ErrNoDocuments
	}

	return nil
}

func (m *Mongo) walletIDs(ctx context.Context, userID int64) ([]int64, error) {
	cur, err := m.db.Collection(colWallets).Find(ctx, bson.M{"user_id": userID},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64

	for cur.Next(ctx) {
		var w walletDoc
		if err = cur.Decode(&w); err != nil {
			return nil, err
		}

		ids = append(ids, w.ID)
	}

	return ids, cur.Err()
}

// deleteWallets deletes the addresses of the wallets in ids and then the wallets.
func (m *Mongo) deleteWallets(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := m.db.Collection(colAddresses).DeleteMany(ctx, bson.M{"wallet_id": bson.M{"$in": ids}}); err != nil {
		return err
	}

	_, err := m.db.Collection(colWallets).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})

	return err
}

func notFound(op string, err error) error {
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.ErrNotFound
	}

	return fmt.Errorf("mongo: %s: %w", op, err)
}

func foreignKey(op string, err error) error {
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.ErrForeignKey
	}

	return fmt.Errorf("mongo: %s: %w", op, err)
}
