package main

import (
	"database/sql"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/trezcool/ecolage/core/tuition"
	receiptsvc "github.com/trezcool/ecolage/services/receipt"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db         *sql.DB
	tuitionSvc *tuition.Service
	receipts   *receiptsvc.Worker
	out        io.Writer
}

// rootCmd builds a fresh command tree, so flags never leak between runs.
func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Ecolage administration tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          helpRunE,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	receipts := &cobra.Command{
		Use:   "receipts",
		Short: "Manage the receipts outbox",
		RunE:  helpRunE,
	}
	receipts.AddCommand(cli.flushCmd())

	root.AddCommand(
		cli.migrateCmd(),
		cli.generateCmd(),
		cli.dischargeCmd(),
		cli.dueCmd(),
		receipts,
	)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:] // program name
	}
	root.SetArgs(args)
	return root.Execute()
}

func helpRunE(cmd *cobra.Command, _ []string) error {
	_ = cmd.Help()
	return errHelp
}
