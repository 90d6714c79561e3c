package main

import (
	"fmt"
	"strconv"

	"github.com/trezcool/goose"

	"github.com/trezcool/engage/storage/database"
)

var ( // mockable
	gooseUpFunc      = goose.Up
	gooseUpByOneFunc = goose.UpByOne
	gooseUpToFunc    = goose.UpTo
	gooseDownFunc    = goose.Down
	gooseDownToFunc  = goose.DownTo
	gooseRedoFunc    = goose.Redo
)

func (cli *commandLine) migrate(args []string) (err error) {
	command := args[0]
	var version int64
	switch command {
	case "up", "up-by-one", "down", "redo": // pass
	case "up-to", "down-to":
		if len(args) < 2 {
			return fmt.Errorf("%s must be of form: migrate %s VERSION", command, command)
		}
		if version, err = strconv.ParseInt(args[1], 10, 64); err != nil {
			return fmt.Errorf("version must be a number (got '%s')", args[1])
		}
	default:
		return fmt.Errorf("%q: no such command", command)
	}

	db, err := cli.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if cErr := db.Close(); err == nil {
			err = cErr
		}
	}()

	fsys, dir := database.Migrations, database.MigrationsDir
	switch command {
	case "up":
		return gooseUpFunc(db, fsys, dir)
	case "up-by-one":
		return gooseUpByOneFunc(db, fsys, dir)
	case "up-to":
		return gooseUpToFunc(db, fsys, dir, version)
	case "down":
		return gooseDownFunc(db, fsys, dir)
	case "down-to":
		return gooseDownToFunc(db, fsys, dir, version)
	default:
		return gooseRedoFunc(db, fsys, dir)
	}
}
