// Package msg defines the interface for different message brokers.
//
// The wallet service publishes an event whenever wallet records change so other services can follow the accounts
// being tracked without polling the store.
package msg

import (
	"strconv"
	"sync"
	"time"
)

// Objects an event refers to.
const (
	USER   = "user"
	WALLET = "wallet"
)

// Actions applied to the objects.
const (
	CREATED = "created"
	DELETED = "deleted"
)

// WalletEvent defines the message that the wallet service publishes when a record changes. StakeKey and WalletType are
// only set for wallet objects.
type WalletEvent struct {
	Net        string    `json:"net"`
	Obj        string    `json:"obj"`
	Act        string    `json:"act"`
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	StakeKey   string    `json:"stake_key,omitempty"`
	WalletType string    `json:"wallet_type,omitempty"`
	At         time.Time `json:"at"`
}

// RoutingKey returns the topic the event is published with: <net>.<obj>.<id>.
func (e WalletEvent) RoutingKey() string {
	return e.Net + "." + e.Obj + "." + strconv.FormatInt(e.ID, 10)
}

// Name returns the event name, ie. wallet.created.
func (e WalletEvent) Name() string {
	return e.Obj + "." + e.Act
}

type MsgBroker interface {
	Setup() error
	Close() error

	// methods for the wallet service
	SendEvent(e WalletEvent) error

	// methods for event consumers
	GetEvents(net string, mut *sync.Mutex) (<-chan WalletEvent, <-chan error, error)
}
