package main

import (
	"fmt"
	"os"

	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/tuition"
	appfs "github.com/trezcool/ecolage/fs"
	emailsvc "github.com/trezcool/ecolage/services/email"
	logsvc "github.com/trezcool/ecolage/services/logger"
	receiptsvc "github.com/trezcool/ecolage/services/receipt"
	"github.com/trezcool/ecolage/storage/database"
	"github.com/trezcool/ecolage/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(os.Stderr, conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	installmentRepo := postgres.NewInstallmentRepository(db)
	studentRepo := postgres.NewStudentRepository(db)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(os.Stdout, conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf)
	}
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, logger)

	tuitionSvc, err := tuition.NewService(installmentRepo, studentRepo, core.NewValidator(), logger, tuition.OptionsFromConfig(conf))
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up tuition service: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:         db.DB,
		tuitionSvc: tuitionSvc,
		receipts:   receiptsvc.NewWorker(installmentRepo, installmentRepo, studentRepo, mailSvc, logger, conf),
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
