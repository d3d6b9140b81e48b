package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mailbridge/mailerr"
	"mailbridge/models"
	"mailbridge/utils"
)

const inbox = "INBOX"

// FetchOptions tunes an IMAPFetcher.
type FetchOptions struct {
	Timeout            time.Duration // whole-session deadline
	Concurrency        int           // parse workers
	BatchSize          int           // sequence numbers per FETCH
	RatePerSecond      float64       // FETCH commands per second, 0 for unlimited
	InsecureSkipVerify bool
}

// FetchStats summarizes one FetchSince call.
type FetchStats struct {
	Matched       int // messages the SEARCH returned
	Fetched       int // messages parsed and handed to the callback
	ParseFailures int // messages skipped because they could not be parsed
}

// IMAPFetcher reads recent INBOX messages from an account's IMAP server.
type IMAPFetcher struct {
	opts    FetchOptions
	parser  *Parser
	limiter *rate.Limiter
}

// NewIMAPFetcher creates a fetcher. Zero options take sensible defaults.
func NewIMAPFetcher(opts FetchOptions) *IMAPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	f := &IMAPFetcher{opts: opts, parser: NewParser()}
	if opts.RatePerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return f
}

// FetchSince selects INBOX read-only, searches for messages with an internal
// date on or after since and calls fn once per parsed message. fn is never
// called concurrently. Messages that fail to parse are logged and counted,
// not returned as errors. Connection, login, select, search and fetch
// failures abort the whole call.
func (f *IMAPFetcher) FetchSince(ctx context.Context, acct *models.MailAccount, password string, since time.Time,
	fn func(*models.NormalizedMessage) error) (*FetchStats, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	log := utils.Log.WithFields(map[string]interface{}{"account": acct.ID, "host": acct.IMAPHost})

	c, err := f.open(ctx, acct, password)
	if err != nil {
		return nil, err
	}
	defer release(ctx, c)
	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer stop()

	if _, err := c.Select(inbox, true); err != nil {
		return nil, fail(ctx, mailerr.StageSelect, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fail(ctx, mailerr.StageSearch, err)
	}

	stats := &FetchStats{Matched: len(seqNums)}
	log.Debug("IMAP search since %s matched %d messages", since.Format(time.RFC3339), len(seqNums))

	for start := 0; start < len(seqNums); start += f.opts.BatchSize {
		end := start + f.opts.BatchSize
		if end > len(seqNums) {
			end = len(seqNums)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return stats, fail(ctx, mailerr.StageFetch, err)
			}
		}
		if err := f.fetchBatch(ctx, c, acct, seqNums[start:end], stats, fn, log); err != nil {
			return stats, err
		}
	}

	if stats.ParseFailures > 0 {
		log.Warn("IMAP fetch skipped %d unparseable messages", stats.ParseFailures)
	}
	return stats, nil
}

// fetchBatch fetches one run of sequence numbers and parses the bodies on a
// bounded pool of workers.
func (f *IMAPFetcher) fetchBatch(ctx context.Context, c *client.Client, acct *models.MailAccount, seqNums []uint32,
	stats *FetchStats, fn func(*models.NormalizedMessage) error, log *utils.Logger) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)

	for msg := range messages {
		msg := msg
		body := msg.GetBody(section)
		if body == nil {
			mu.Lock()
			stats.ParseFailures++
			mu.Unlock()
			log.Warn("IMAP message uid=%d came back without a body", msg.Uid)
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			nm, err := f.parser.Parse(body)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.ParseFailures++
				log.WithError(err).Warn("Skipping message uid=%d", msg.Uid)
				return nil
			}
			nm.AccountID = acct.ID
			stats.Fetched++
			return fn(nm)
		})
	}

	fetchErr := <-done
	if err := g.Wait(); err != nil {
		return err
	}
	if fetchErr != nil {
		return fail(ctx, mailerr.StageFetch, fetchErr)
	}
	return nil
}

// Check opens a session, logs in and selects INBOX.
func (f *IMAPFetcher) Check(ctx context.Context, acct *models.MailAccount, password string) error {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	c, err := f.open(ctx, acct, password)
	if err != nil {
		return err
	}
	defer release(ctx, c)
	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer stop()

	if _, err := c.Select(inbox, true); err != nil {
		return fail(ctx, mailerr.StageSelect, err)
	}
	return nil
}

// open dials, upgrades to TLS where possible and logs in. The returned
// client must be handed to release.
func (f *IMAPFetcher) open(ctx context.Context, acct *models.MailAccount, password string) (*client.Client, error) {
	addr := net.JoinHostPort(acct.IMAPHost, strconv.Itoa(acct.IMAPPort))
	dialer := &net.Dialer{Timeout: f.opts.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	tlsConfig := &tls.Config{
		ServerName:         acct.IMAPHost,
		InsecureSkipVerify: f.opts.InsecureSkipVerify,
	}

	var (
		c   *client.Client
		err error
	)
	if acct.IMAPUseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fail(ctx, mailerr.StageConnect, err)
	}
	c.Timeout = f.opts.Timeout

	if !acct.IMAPUseTLS {
		if ok, _ := c.SupportStartTLS(); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				c.Terminate()
				return nil, fail(ctx, mailerr.StageHandshake, err)
			}
		}
	}

	if err := c.Login(acct.LoginName(), password); err != nil {
		release(ctx, c)
		return nil, fail(ctx, mailerr.StageAuth, err)
	}
	return c, nil
}

// release logs out while the context is alive, otherwise drops the connection.
func release(ctx context.Context, c *client.Client) {
	if ctx.Err() == nil {
		if err := c.Logout(); err == nil {
			return
		}
	}
	c.Terminate()
}

// fail classifies err for stage. An expired session deadline is reported as
// a timeout even when the command itself only saw a closed connection.
func fail(ctx context.Context, stage mailerr.Stage, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &mailerr.TimeoutError{Protocol: "imap", Stage: stage, Err: err}
	}
	return mailerr.IMAP(stage, err)
}
