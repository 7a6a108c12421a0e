package main

import (
	"log"
	"os"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/core/catalog"
	"github.com/trezcool/maendeleo/core/progress"
	emailsvc "github.com/trezcool/maendeleo/services/email"
	logsvc "github.com/trezcool/maendeleo/services/logger"
	"github.com/trezcool/maendeleo/storage/database"
	sqlxrepos "github.com/trezcool/maendeleo/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	svcLogger := logsvc.NewRollbarLogger(logger, conf)
	svcLogger.Enable(false) // log locally only

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()
	errAndDie(db.Ping())

	catalogSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db))
	progressSvc := progress.NewService(
		database.TxDB{DB: db},
		sqlxrepos.NewProgressRepository(db),
		catalogSvc,
		emailsvc.NewConsoleService(conf),
		svcLogger,
		conf,
	)

	// start CLI
	cli := commandLine{
		db:  db,
		svc: progressSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
