package service

import (
	"context"
	"sync"
	"time"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

// SyncService pulls recent INBOX mail for one account into the store.
type SyncService struct {
	accounts   AccountRepository
	reconciler *Reconciler
	fetcher    Fetcher
	sealer     Sealer
	notifier   Notifier
	leases     *utils.LeaseTable
	cutoff     time.Duration
	now        func() time.Time
}

// SyncOptions configures a SyncService.
type SyncOptions struct {
	Cutoff   time.Duration // how far back to search, 30 days when zero
	LeaseTTL time.Duration // upper bound on one sync holding its account
	Notifier Notifier
}

// NewSyncService wires a SyncService.
func NewSyncService(accounts AccountRepository, emails EmailRepository, fetcher Fetcher, sealer Sealer, opts SyncOptions) *SyncService {
	if opts.Cutoff <= 0 {
		opts.Cutoff = 30 * 24 * time.Hour
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 5 * time.Minute
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	return &SyncService{
		accounts:   accounts,
		reconciler: NewReconciler(emails),
		fetcher:    fetcher,
		sealer:     sealer,
		notifier:   opts.Notifier,
		leases:     utils.NewLeaseTable(opts.LeaseTTL),
		cutoff:     opts.Cutoff,
		now:        time.Now,
	}
}

// Sync fetches the account's messages since now minus the cutoff and stores
// the ones not seen before. Ownership is checked before any network I/O, and
// a second Sync for the same user and account fails with BusyError while the
// first is running.
func (s *SyncService) Sync(ctx context.Context, userID, accountID string) (*models.SyncResult, error) {
	acct, err := ownedAccount(ctx, s.accounts, userID, accountID)
	if err != nil {
		return nil, err
	}

	key := userID + "/" + accountID
	token, ok := s.leases.TryAcquire(key)
	if !ok {
		return nil, &mailerr.BusyError{Key: key}
	}
	defer s.leases.Release(key, token)

	pw, err := password(s.sealer, acct)
	if err != nil {
		return nil, err
	}

	log := utils.Log.WithFields(map[string]interface{}{"user": userID, "account": accountID})
	since := s.now().Add(-s.cutoff)

	var (
		mu      sync.Mutex
		fetched []*models.NormalizedMessage
	)
	stats, err := s.fetcher.FetchSince(ctx, acct, pw, since, func(m *models.NormalizedMessage) error {
		mu.Lock()
		fetched = append(fetched, m)
		mu.Unlock()
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Mailbox fetch failed")
		return nil, err
	}

	result, err := s.reconciler.Reconcile(ctx, userID, accountID, fetched)
	if err != nil {
		log.WithError(err).Error("Storing fetched messages failed")
		return nil, err
	}
	if stats != nil {
		result.ParseFailures = stats.ParseFailures
	}

	log.Info("Sync finished: %d fetched, %d new, %d unparseable",
		result.TotalFetched, result.InsertedCount, result.ParseFailures)

	if result.InsertedCount > 0 {
		s.notifier.Notify(userID, models.Notification{
			Type:    models.NotificationNewEmail,
			Message: "new_email",
			Data: map[string]interface{}{
				"accountId": accountID,
				"count":     result.InsertedCount,
			},
		})
	}
	return result, nil
}
