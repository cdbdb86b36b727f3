package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tarancss/stakewallet/lib/store/db"
)

const migrateTimeout = 30 * time.Second

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck // nothing to do on failure

			dbConn, err := db.New(conf.DBType, conf.DBConn, log)
			if err != nil {
				return err
			}
			defer db.Close(dbConn) //nolint:errcheck // exiting

			ctx, cancel := context.WithTimeout(cmd.Context(), migrateTimeout)
			defer cancel()

			if err = dbConn.Migrate(ctx); err != nil {
				return err
			}

			log.Info("schema is up to date", zap.String("dbtype", conf.DBType))

			return nil
		},
	}
}
