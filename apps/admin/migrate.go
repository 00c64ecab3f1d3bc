package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/ecolage/storage/database"
)

var gooseRunFunc = database.Run // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a database migration command",
		Long: `Run a goose command against the embedded migrations.
Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version, create NAME [go|sql], fix`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return helpRunE(cmd, args)
			}
			return gooseRunFunc(args[0], cli.db, args[1:]...)
		},
	}
}
