// Package sync runs the mailbox scan and operation expiry sweep on their
// own schedules.
package sync

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/bus"
	"github.com/sdis/opsdash/internal/mailbox"
	"github.com/sdis/opsdash/internal/model"
)

// Mailbox is the IMAP session a scan cycle drives.
type Mailbox interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SelectInbox(ctx context.Context) error
	Search(ctx context.Context, since time.Time) ([]uint32, error)
	FetchAndParse(ctx context.Context, seqNums []uint32, fn func(model.Email)) error
}

// Publisher fans parsed messages out to the classifiers.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev model.MailEvent) *bus.Delivery
}

// Sweeper resolves operations whose window has ended.
type Sweeper interface {
	Sweep(now time.Time) []string
}

// Job names a scheduled activity.
type Job string

const (
	JobScan  Job = "scan"
	JobSweep Job = "sweep"
)

// SyncState represents the current state of a job.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText renders the state by name in JSON.
func (s SyncState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SyncStatus holds the last outcome of a job.
type SyncStatus struct {
	Job       Job       `json:"job"`
	State     SyncState `json:"state"`
	LastRun   time.Time `json:"lastRun"`
	LastError string    `json:"lastError,omitempty"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`

	// Processed counts messages published by the last scan, or operations
	// resolved by the last sweep.
	Processed int `json:"processed"`
}

// Poller orchestrates the background scan and sweep loops.
type Poller struct {
	mailbox  Mailbox
	bus      Publisher
	sweeper  Sweeper
	cfg      model.PollerConfig
	lookback time.Duration
	logger   *zap.Logger
	now      func() time.Time

	inFlight atomic.Bool

	mu        gosync.Mutex
	statuses  map[Job]*SyncStatus
	running   bool
	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        conc.WaitGroup
}

// New creates a Poller. lookback bounds the mailbox search window.
func New(
	mb Mailbox,
	pub Publisher,
	sw Sweeper,
	cfg model.PollerConfig,
	lookback time.Duration,
	logger *zap.Logger,
) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Poller{
		mailbox:  mb,
		bus:      pub,
		sweeper:  sw,
		cfg:      cfg,
		lookback: lookback,
		logger:   logger.Named("poller"),
		now:      time.Now,
		statuses: map[Job]*SyncStatus{
			JobScan:  {Job: JobScan},
			JobSweep: {Job: JobSweep},
		},
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the scan and sweep loops. The first scan runs after the
// configured startup delay. Calling Start on a running poller has no
// effect; a stopped poller can be started again.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true

	stop := make(chan struct{})
	p.stopCh = stop

	p.wg.Go(func() { p.scanLoop(ctx, stop) })
	p.wg.Go(func() { p.sweepLoop(ctx, stop) })

	p.logger.Info("poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("sweep_interval", p.cfg.SweepInterval),
		zap.Duration("startup_delay", p.cfg.StartupDelay))
}

// Stop halts both loops and waits for a running scan to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running || p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.logger.Info("poller stopped")
}

// TriggerNow requests an immediate scan. The request is dropped when one
// is already queued; a scan still in flight makes it a skipped tick.
func (p *Poller) TriggerNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Statuses returns a snapshot of every job's status.
func (p *Poller) Statuses() []SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]SyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b SyncStatus) int {
		return cmp.Compare(a.Job, b.Job)
	})
	return out
}

func (p *Poller) scanLoop(ctx context.Context, stop <-chan struct{}) {
	startup := time.NewTimer(p.cfg.StartupDelay)
	defer startup.Stop()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Each scan runs on its own goroutine so a slow cycle turns later
	// ticks into skips instead of queuing them.
	var scans conc.WaitGroup
	defer scans.Wait()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-startup.C:
			scans.Go(func() { p.Scan(ctx) })
		case <-ticker.C:
			scans.Go(func() { p.Scan(ctx) })
		case <-p.triggerCh:
			scans.Go(func() { p.Scan(ctx) })
		}
	}
}

func (p *Poller) sweepLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepNow()
		}
	}
}

// Scan runs one mailbox cycle unless another is in flight, in which case
// it returns false immediately. Cycle errors are logged and recorded in the
// scan status, never returned.
func (p *Poller) Scan(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug("scan still in flight, skipping tick")
		p.update(JobScan, func(s *SyncStatus) { s.Skipped++ })
		return false
	}
	defer p.inFlight.Store(false)

	p.update(JobScan, func(s *SyncStatus) { s.State = SyncRunning })
	start := p.now()

	var (
		published int
		err       error
		pc        panics.Catcher
	)
	pc.Try(func() { published, err = p.Cycle(ctx) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	switch {
	case err == nil:
		p.logger.Info("scan completed",
			zap.Int("published", published),
			zap.Duration("elapsed", p.now().Sub(start)))
	case mailbox.IsAuthError(err):
		p.logger.Error("mailbox authentication failed", zap.Error(err))
	default:
		p.logger.Error("scan failed",
			zap.Int("published", published), zap.Error(err))
	}

	p.update(JobScan, func(s *SyncStatus) {
		s.Runs++
		s.LastRun = start
		s.Processed = published
		s.State = SyncIdle
		s.LastError = ""
		if err != nil {
			s.State = SyncError
			s.LastError = err.Error()
		}
	})
	return true
}

// Cycle connects, searches the lookback window, fetches and publishes
// every message, waits for all subscribers, and always disconnects. It
// returns the number of messages published.
func (p *Poller) Cycle(ctx context.Context) (int, error) {
	defer func() {
		// Logout must run even when ctx is already cancelled.
		_ = p.mailbox.Disconnect(context.WithoutCancel(ctx))
	}()

	if err := p.mailbox.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connecting mailbox: %w", err)
	}
	if err := p.mailbox.SelectInbox(ctx); err != nil {
		return 0, fmt.Errorf("opening inbox: %w", err)
	}

	since := p.now().Add(-p.lookback)
	seqNums, err := p.mailbox.Search(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("searching inbox: %w", err)
	}
	p.logger.Debug("messages in window",
		zap.Int("count", len(seqNums)), zap.Time("since", since))

	var (
		mu         gosync.Mutex
		deliveries []*bus.Delivery
	)
	fetchErr := p.mailbox.FetchAndParse(ctx, seqNums, func(e model.Email) {
		d := p.bus.Publish(ctx, model.TopicMailParsed, model.NewMailEvent(e))
		mu.Lock()
		deliveries = append(deliveries, d)
		mu.Unlock()
	})

	// Messages published before a fetch failure are still processed.
	mu.Lock()
	pending := deliveries
	mu.Unlock()
	for _, d := range pending {
		d.Wait()
	}

	if fetchErr != nil {
		return len(pending), fmt.Errorf("fetching messages: %w", fetchErr)
	}
	return len(pending), nil
}

// SweepNow runs the expiry sweep once and records its outcome.
func (p *Poller) SweepNow() []string {
	if p.sweeper == nil {
		return nil
	}
	now := p.now()

	var (
		resolved []string
		pc       panics.Catcher
	)
	pc.Try(func() { resolved = p.sweeper.Sweep(now) })
	r := pc.Recovered()
	if r != nil {
		p.logger.Error("expiry sweep failed", zap.Error(r.AsError()))
	}

	p.update(JobSweep, func(s *SyncStatus) {
		s.Runs++
		s.LastRun = now
		s.Processed = len(resolved)
		s.State = SyncIdle
		s.LastError = ""
		if r != nil {
			s.State = SyncError
			s.LastError = r.AsError().Error()
		}
	})
	return resolved
}

func (p *Poller) update(job Job, fn func(*SyncStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.statuses[job]; ok {
		fn(s)
	}
}
