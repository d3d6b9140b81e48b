package main

import (
	"mailbridge/auth"
	"mailbridge/config"
	"mailbridge/credentials"
	"mailbridge/handlers/api"
	"mailbridge/mailer"
	"mailbridge/service"
	"mailbridge/storage"
	"mailbridge/utils"
)

// components holds everything built from one configuration.
type components struct {
	store    storage.DocumentStore
	verifier *auth.JWTVerifier
	hub      *api.NotificationHub
	sync     *service.SyncService
	send     *service.SendService
	accounts *service.AccountService
	mailbox  *service.MailboxService
}

// build opens the store and wires the services. Close releases the store.
func build(cfg *config.Config) (*components, error) {
	utils.Log.SetLevel(utils.ParseLogLevel(cfg.Server.LogLevel))

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	cipher, err := credentials.NewCipher(cfg.Encryption.Key)
	if err != nil {
		store.Close()
		return nil, err
	}
	verifier, err := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		store.Close()
		return nil, err
	}

	fetcher := mailer.NewIMAPFetcher(mailer.FetchOptions{
		Timeout:            cfg.MailTimeout(),
		Concurrency:        cfg.Sync.FetchConcurrency,
		BatchSize:          cfg.Sync.FetchBatch,
		RatePerSecond:      cfg.Sync.FetchRatePerSecond,
		InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
	})
	sender := mailer.NewSMTPSender(mailer.SendOptions{
		Timeout:            cfg.MailTimeout(),
		InsecureSkipVerify: cfg.Mail.InsecureSkipVerify,
		VerifyBeforeSend:   cfg.Mail.VerifyBeforeSend,
	})

	accounts := storage.NewAccountStore(store)
	emails := storage.NewEmailStore(store)
	hub := api.NewNotificationHub()

	return &components{
		store:    store,
		verifier: verifier,
		hub:      hub,
		sync: service.NewSyncService(accounts, emails, fetcher, cipher, service.SyncOptions{
			Cutoff:   cfg.SyncCutoff(),
			LeaseTTL: cfg.SyncLease(),
			Notifier: hub,
		}),
		send:     service.NewSendService(accounts, emails, sender, cipher, hub),
		accounts: service.NewAccountService(accounts, fetcher, sender, cipher),
		mailbox:  service.NewMailboxService(emails),
	}, nil
}

func (c *components) Close() error {
	return c.store.Close()
}
