// Package main: stake wallet service.
//
// The service needs a database (sqlite, postgresql or mongodb) and a Blockfrost-compatible indexer. A message broker
// is optional: when configured, record changes are published as wallet events.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/block"
	"github.com/tarancss/stakewallet/lib/config"
	"github.com/tarancss/stakewallet/lib/logging"
	"github.com/tarancss/stakewallet/lib/msg"
	"github.com/tarancss/stakewallet/lib/msg/amqp"
	"github.com/tarancss/stakewallet/lib/store/db"
	"github.com/tarancss/stakewallet/wallet"
)

const programName = "stakewallet"

var globalFlags = struct {
	confPath string
	dotEnv   string
}{}

func main() {
	var monitor bool

	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Cardano stake wallet service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(monitor)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.confPath, "config", "c", "", "get configuration from json file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.dotEnv, "env", ".env", "load environment variables from file")
	rootCmd.Flags().BoolVarP(&monitor, "monitor", "m", false, "serve Prometheus metrics on the metrics port")

	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(eventsCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra has already displayed the error
		os.Exit(1)
	}
}

// setup loads the environment and configuration and builds the logger.
func setup() (config.ServiceConfig, *zap.Logger, error) {
	if err := config.LoadDotEnv(globalFlags.dotEnv); err != nil {
		return config.ServiceConfig{}, nil, err
	}

	log, err := logging.New()
	if err != nil {
		return config.ServiceConfig{}, nil, fmt.Errorf("cannot build logger: %w", err)
	}

	conf, err := config.ExtractConfiguration(globalFlags.confPath)
	if err != nil {
		return conf, log, err
	}

	if err = conf.Validate(); err != nil {
		return conf, log, err
	}

	log.Info("configuration loaded",
		zap.String("dbtype", conf.DBType),
		zap.String("port", conf.Port),
		zap.String("mbtype", conf.MbType),
		zap.String("network", conf.Bc.Name),
		zap.String("node", conf.Bc.Node),
		zap.Int("timeout", conf.Bc.Timeout))

	return conf, log, nil
}

// broker connects to the message broker in conf, if any. Connection is retried once after 10s to give the broker
// time to come up.
func broker(conf config.ServiceConfig, log *zap.Logger) (*amqp.Amqp, error) {
	switch conf.MbType {
	case "":
		return nil, nil
	case "amqp":
		mb, err := amqp.New(conf.MbConn, log)
		if err != nil {
			log.Warn("message broker not ready, retrying in 10s", zap.Error(err))
			time.Sleep(10 * time.Second) //nolint:gomnd // wait for AMQP to be ready

			if mb, err = amqp.New(conf.MbConn, log); err != nil {
				return nil, err
			}
		}

		if err = mb.Setup(); err != nil {
			_ = mb.Close()

			return nil, err
		}

		return mb, nil
	}

	return nil, fmt.Errorf("unknown message broker type: %s", conf.MbType)
}

func serve(monitor bool) error {
	conf, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck // nothing to do on failure

	// connect to database
	dbConn, err := db.New(conf.DBType, conf.DBConn, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	err = dbConn.Migrate(ctx)
	cancel()

	if err != nil {
		_ = db.Close(dbConn)

		return err
	}

	// account indexer client
	bc, err := block.Init(conf.Bc, log)
	if err != nil {
		_ = db.Close(dbConn)

		return err
	}

	// message broker
	var mb msg.MsgBroker

	amqpBroker, err := broker(conf, log)
	if err != nil {
		_ = db.Close(dbConn)

		return err
	}

	if amqpBroker != nil {
		mb = amqpBroker
	}

	// create wallet service
	w := wallet.New(dbConn, bc, mb, log, prometheus.DefaultRegisterer)

	// load Prometheus monitor
	if monitor {
		go func() {
			h := http.NewServeMux()
			h.Handle("/metrics", promhttp.Handler())

			log.Info("serving metrics API", zap.String("port", conf.MetricsPort))

			if err := http.ListenAndServe(":"+conf.MetricsPort, h); err != nil { //nolint:gosec // metrics only
				log.Error("metrics API stopped", zap.Error(err))
			}
		}()
	}

	// capture CTRL+C or docker's SIGTERM for gracious exit
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
		<-sigchan
		log.Info("program killed, shutting down")
		w.Stop()
	}()

	// init RESTful API, wait for its return and log response
	log.Info(w.Init(conf.RestfulEndpoint, conf.Port, conf.SSLPort, conf.SSLCert, conf.SSLKey))

	return nil
}
