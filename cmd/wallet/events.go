package main

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/msg"
)

var errNoBroker = errors.New("no message broker configured (mbtype)")

// eventsCommand follows the wallet events of a network and logs them until interrupted.
func eventsCommand() *cobra.Command {
	var net string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Log the wallet events published to the message broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck // nothing to do on failure

			mb, err := broker(conf, log)
			if err != nil {
				return err
			}

			if mb == nil {
				return errNoBroker
			}
			defer mb.Close()

			if net == "" {
				net = conf.Bc.Name
			}

			return follow(mb, net, log)
		},
	}

	cmd.Flags().StringVarP(&net, "net", "n", "", "network to follow (defaults to the configured blockchain name)")

	return cmd
}

func follow(mb msg.MsgBroker, net string, log *zap.Logger) error {
	mut := new(sync.Mutex)
	mut.Lock()

	eveCh, errCh, err := mb.GetEvents(net, mut)
	if err != nil {
		return err
	}

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)

	log.Info("listening to wallet events", zap.String("net", net))

	for {
		select {
		case e, ok := <-eveCh:
			if !ok {
				log.Info("event channel closed", zap.String("net", net))

				return nil
			}

			log.Info("event", zap.String("net", e.Net), zap.String("event", e.Name()), zap.Int64("id", e.ID),
				zap.Int64("user", e.UserID), zap.String("stake_key", e.StakeKey), zap.Time("at", e.At))
			mut.Unlock()
		case err := <-errCh:
			log.Warn("undecodable event", zap.String("net", net), zap.Error(err))
		case <-sigchan:
			return nil
		}
	}
}
