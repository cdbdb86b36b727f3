// Package db implements the opening and graceful closing of database connections.
package db

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/store"
	"github.com/tarancss/stakewallet/lib/store/mongo"
	"github.com/tarancss/stakewallet/lib/store/postgres"
	"github.com/tarancss/stakewallet/lib/store/sqlite"
)

const (
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
	SQLITE   string = "sqlite"
)

var ErrUnknownDB = errors.New("unknown database type")

// New returns a new database connection according to the options (database type).
func New(options, connection string, log *zap.Logger) (dh store.DB, err error) {
	switch options {
	case MONGODB:
		var m *mongo.Mongo
		if m, err = mongo.New(connection, "", log); err == nil {
			dh = m
		}
	case POSTGRES:
		var p *postgres.Postgres
		if p, err = postgres.New(connection, log); err == nil {
			dh = p
		}
	case SQLITE:
		var s *sqlite.Sqlite
		if s, err = sqlite.New(connection, log); err == nil {
			dh = s
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownDB, options)
	}

	return dh, err
}

// Close gracefully closes the database connection.
func Close(dh store.DB) error {
	if dh == nil {
		return nil
	}

	return dh.Close()
}
