package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/cache"
	logsvc "github.com/trezcool/engage/services/logger"
	"github.com/trezcool/engage/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	cli := commandLine{
		logger: logger,
		openDB: func() (*sql.DB, error) {
			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}
			return db, database.Ping(db)
		},
		// badger locks its directory: the API must be stopped
		openStore: func() (cacheStore, error) {
			return cache.OpenBadger(conf.Cache.BadgerPath, logger)
		},
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}
