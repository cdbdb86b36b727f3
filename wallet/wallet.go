// Package wallet implements the stake wallet microservice.
//
// The service keeps user and wallet records in a store and serves, for each wallet, the live state of its stake
// account as reported by a Blockfrost-compatible indexer. Records are the source of truth for identity, the indexer
// is the only source for active/balance/rewards. A failed lookup is reported as such and is never replaced by cached
// or default values.
package wallet

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block"
	"github.com/tarancss/stakewallet/lib/msg"
	"github.com/tarancss/stakewallet/lib/store"
	"github.com/tarancss/stakewallet/lib/store/db"
)

const shutdownTimeout = 10 * time.Second

// Wallet contains the data necessary to deliver the service
type Wallet struct {
	db  store.DB      // db connection
	bc  block.Chain   // account indexer client
	mb  msg.MsgBroker // optional, events are not published when nil
	log *zap.Logger
	m   *metrics
	mu  sync.Mutex    // guards s and ss
	s   *http.Server  // http server
	ss  *http.Server  // https server
	sc  chan struct{} // http server channel used for graceful shutdowns
}

// New returns a pointer to a new Wallet service. The message broker may be nil. Collectors are registered in reg,
// or in a private registry when reg is nil.
func New(dbConn store.DB, bc block.Chain, mb msg.MsgBroker, log *zap.Logger, reg prometheus.Registerer) *Wallet {
	if log == nil {
		log = zap.NewNop()
	}

	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Wallet{
		db:  dbConn,
		bc:  bc,
		mb:  mb,
		log: log.With(zap.String("component", "wallet")),
		m:   newMetrics(reg),
		sc:  make(chan struct{}),
	}
}

// Stop shuts down the http servers implementing the RESTful API and closes gracefully the connections to message
// broker, account indexer and database.
func (w *Wallet) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	w.mu.Lock()
	s, ss := w.s, w.ss
	w.mu.Unlock()

	// shutdown http servers
	if s != nil {
		if err := s.Shutdown(ctx); err != nil {
			w.log.Error("error in http server shutdown", zap.Error(err))
		}
	}

	if ss != nil {
		if err := ss.Shutdown(ctx); err != nil {
			w.log.Error("error in https server shutdown", zap.Error(err))
		}
	}

	close(w.sc) // close server channel to indicate shutdowns have finished

	// close message broker
	if w.mb != nil {
		if err := w.mb.Close(); err != nil {
			w.log.Error("error closing message broker", zap.Error(err))
		}
	}

	if w.bc != nil {
		w.bc.Close()
	}

	// close database
	if err := db.Close(w.db); err != nil {
		w.log.Error("error disconnecting database", zap.Error(err))
	}
}

// publish sends e to the message broker if one is configured. Failures are logged only.
func (w *Wallet) publish(e msg.WalletEvent) {
	if w.mb == nil {
		return
	}

	if w.bc != nil {
		e.Net = w.bc.Name()
	}

	e.At = time.Now().UTC()

	if err := w.mb.SendEvent(e); err != nil {
		w.log.Warn("could not publish event", zap.String("event", e.Name()), zap.Int64("id", e.ID), zap.Error(err))
	}
}
