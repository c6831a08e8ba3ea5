package main

import (
	"log"

	"banksync/internal/domain/ledger"
	"banksync/internal/domain/requisition"
	"banksync/internal/domain/transaction"
	"banksync/internal/infrastructure/gocardless"
	"banksync/internal/infrastructure/mail"
	"banksync/internal/infrastructure/postgres"
	"banksync/internal/infrastructure/ynab"
	httphandlers "banksync/internal/interfaces/http"
	"banksync/internal/interfaces/scheduler"
	"banksync/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB *postgres.DB

	Runner      *scheduler.CycleRunner
	SyncHandler *httphandlers.SyncHandler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	requisitionRepo := postgres.NewRequisitionRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	mailer := mail.NewMailer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Email,
		cfg.SMTP.Password,
		cfg.SMTP.SendTo,
	)

	aggregator := gocardless.NewClient(cfg.GoCardless.SecretID, cfg.GoCardless.Secret)
	ledgerClient := ynab.NewClient(cfg.YNAB.Token, cfg.YNAB.BudgetID)

	requisitionService := requisition.NewService(
		aggregator,
		requisitionRepo,
		mailer,
		cfg.GoCardless.BankID,
		cfg.GoCardless.CallbackURL,
	)
	ingestService := transaction.NewIngestService(
		aggregator,
		transactionRepo,
		mailer,
		cfg.GoCardless.DaysInPastToRetrieve,
		cfg.GoCardless.DedupOverlapDays,
	)
	ledgerSync := ledger.NewSyncService(ledgerClient, transactionRepo, mailer, cfg.YNAB.AccountName)

	runner := scheduler.NewCycleRunner(requisitionService, ingestService, ledgerSync)
	syncHandler := httphandlers.NewSyncHandler(runner, requisitionService, aggregator)

	return &Dependencies{
		DB:          db,
		Runner:      runner,
		SyncHandler: syncHandler,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
