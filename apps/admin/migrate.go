package main

import (
	"database/sql"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/shule/fs"
)

var gooseRunFunc = goose.RunFS // mockable

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.sqlDB(), appfs.FS, "migrations", arguments...)
}

func (cli *commandLine) sqlDB() *sql.DB {
	if cli.db == nil || cli.db.DB == nil {
		return nil
	}
	return cli.db.DB.DB
}
