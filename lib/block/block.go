// Package block defines the interface required for account lookups against a chain indexer.
package block

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block/blockfrost"
	"github.com/tarancss/stakewallet/lib/block/types"
	"github.com/tarancss/stakewallet/lib/config"
)

// Chain is the account lookup used by the wallet service. AccountInfo makes exactly one attempt per call and
// returns a *types.LookupError on failure.
type Chain interface {
	Name() string
	Close()
	AccountInfo(ctx context.Context, stakeKey string) (types.Account, error)
}

// Init returns the client for the indexer in the config.
func Init(bc config.BlockConfig, log *zap.Logger) (Chain, error) {
	c, err := blockfrost.Init(bc.Name, bc.Node, bc.Secret, time.Duration(bc.Timeout)*time.Second, log)
	if err != nil {
		return nil, err
	}

	return c, nil
}
