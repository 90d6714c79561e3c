package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/trezcool/engage/core"
)

var errHelp = errors.New("help provided")

type cacheStore interface {
	DeletePrefix(prefix string) error
	DeleteAll() error
	io.Closer
}

type commandLine struct {
	logger    core.Logger
	openDB    func() (*sql.DB, error)
	openStore func() (cacheStore, error)
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up|up-by-one|up-to VERSION|down|down-to VERSION|redo - run the database migrations")
	fmt.Println("  clearcache [-prefix PREFIX] - drop the persistent local cache, or the keys under PREFIX")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	clearCacheCmd := flag.NewFlagSet("clearcache", flag.ContinueOnError)
	clearCachePrefix := clearCacheCmd.String("prefix", "", "Only drop the keys starting with PREFIX, eg. `user/u1/`.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "clearcache":
		if err := clearCacheCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.clearCache(*clearCachePrefix)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) clearCache(prefix string) (err error) {
	store, err := cli.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cErr := store.Close(); err == nil {
			err = cErr
		}
	}()

	if prefix == "" {
		err = store.DeleteAll()
	} else {
		err = store.DeletePrefix(prefix)
	}
	if err == nil {
		cli.logger.Info("local cache cleared", map[string]interface{}{"prefix": prefix})
	}
	return err
}
