package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/apecharmilles/backend/apps/api/echo"
	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/newsletter"
	"github.com/apecharmilles/backend/core/tombola"
	emailsvc "github.com/apecharmilles/backend/services/email"
	logsvc "github.com/apecharmilles/backend/services/logger"
	"github.com/apecharmilles/backend/storage/database"
	sqlxrepos "github.com/apecharmilles/backend/storage/database/sqlx"
)

func main() {
	// set up logger
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	logger.Info(fmt.Sprintf("%s API initializing : version %q", core.Conf.AppName, core.Conf.Build))
	defer logger.Info("Application stopped")

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = database.Migrate(db); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	acctSvc := account.NewService(sqlxrepos.NewAccountRepository(sdb), mailSvc)
	tombolaSvc := tombola.NewService(sqlxrepos.NewTombolaRepository(sdb), core.Conf.Tombola)
	newsSvc := newsletter.NewService(sqlxrepos.NewNewsletterRepository(sdb), mailSvc)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:        core.Conf.Server.Address(),
			AccountSvc:     acctSvc,
			TombolaSvc:     tombolaSvc,
			NewsletterSvc:  newsSvc,
			Logger:         logger,
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
	)
	go app.Start()

	// graceful shutdown
	sig := <-shutdown
	logger.Info(fmt.Sprintf("%v: start shutdown...", sig))

	// give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}
