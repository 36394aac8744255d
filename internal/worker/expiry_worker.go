package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"go.uber.org/zap"
)

// SaleLister is the part of the sale store the sweeper reads
type SaleLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Sale, error)
	ListReminderDue(ctx context.Context, now, before time.Time, limit int) ([]*domain.Sale, error)
	ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Sale, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize caps the sales handled per sweep and per kind
	BatchSize int
	// ReminderLead is how long before its deadline a pending sale gets a
	// reminder; zero disables reminders
	ReminderLead time.Duration
	// SettleGrace is how long a sale may owe a ledger settlement before the
	// sweeper completes it
	SettleGrace time.Duration
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: time.Minute,
		BatchSize:    100,
		ReminderLead: 24 * time.Hour,
		SettleGrace:  time.Minute,
	}
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Expired   int
	Confirmed int
	Reminded  int
	Settled   int
	Failed    int
}

// ExpiryWorker moves pending sales past their deadline to expired, confirms
// card sales whose authorization outlived a failed confirmation, completes
// settlements left owed and sends payment reminders
type ExpiryWorker struct {
	sales       SaleLister
	transitions service.TransitionService
	config      *ExpiryWorkerConfig
	log         *logger.Logger
	now         func() time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool

	// Stats
	totalExpired  int64
	totalReminded int64
	lastScanTime  time.Time
	lastResult    SweepResult
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(sales SaleLister, transitions service.TransitionService, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.SettleGrace <= 0 {
		config.SettleGrace = time.Minute
	}

	return &ExpiryWorker{
		sales:       sales,
		transitions: transitions,
		config:      config,
		log:         logger.Get(),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every ScanInterval
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker", zap.Duration("interval", w.config.ScanInterval))

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the expiry worker and waits for the current sweep
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.ErrorContext(ctx, "Expiry sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single sweep. Failures on individual sales are
// counted and logged; the returned error reports a failed listing.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (*SweepResult, error) {
	now := w.now()
	result := &SweepResult{}

	expired, err := w.sales.ListExpired(ctx, now, w.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list expired sales: %w", err)
	}
	for _, sale := range expired {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if sale.Artifact.AuthorizationCode != "" {
			if err := w.resolve(ctx, sale, "confirm", domain.PaymentStatusConfirmed); err != nil {
				result.Failed++
				continue
			}
			result.Confirmed++
			continue
		}
		if err := w.resolve(ctx, sale, "expire", domain.PaymentStatusExpired); err != nil {
			result.Failed++
			continue
		}
		result.Expired++
	}

	var errs []error
	unsettled, err := w.sales.ListUnsettled(ctx, now.Add(-w.config.SettleGrace), w.config.BatchSize)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list unsettled sales: %w", err))
	}
	for _, sale := range unsettled {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := w.settle(ctx, sale); err != nil {
			result.Failed++
			continue
		}
		result.Settled++
	}

	if w.config.ReminderLead > 0 {
		due, err := w.sales.ListReminderDue(ctx, now, now.Add(w.config.ReminderLead), w.config.BatchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list reminder-due sales: %w", err))
		}
		for _, sale := range due {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			sent, err := w.transitions.Remind(ctx, sale.Code)
			if err != nil {
				w.log.WarnContext(ctx, "Failed to send reminder", zap.String("sale_code", sale.Code), zap.Error(err))
				result.Failed++
				continue
			}
			if sent {
				result.Reminded++
			}
		}
	}

	w.record(now, result)
	if *result != (SweepResult{}) {
		w.log.Info("Expiry sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("settled", result.Settled),
			zap.Int("reminded", result.Reminded),
			zap.Int("failed", result.Failed),
		)
	}
	return result, errors.Join(errs...)
}

func (w *ExpiryWorker) resolve(ctx context.Context, sale *domain.Sale, op string, target domain.PaymentStatus) error {
	_, err := w.transitions.Transition(ctx, sale.Code, target)
	return w.outcome(ctx, sale, op, err)
}

// settle repeats the move that left the sale owing a settlement; the
// transition service completes the settlement when it finds the status
// already in place
func (w *ExpiryWorker) settle(ctx context.Context, sale *domain.Sale) error {
	var err error
	switch {
	case sale.PaymentStatus == domain.PaymentStatusConfirmed:
		_, err = w.transitions.Transition(ctx, sale.Code, domain.PaymentStatusConfirmed)
	case sale.PaymentStatus == domain.PaymentStatusExpired:
		_, err = w.transitions.Transition(ctx, sale.Code, domain.PaymentStatusExpired)
	default:
		_, err = w.transitions.Cancel(ctx, sale.Code)
	}
	return w.outcome(ctx, sale, "settle", err)
}

func (w *ExpiryWorker) outcome(ctx context.Context, sale *domain.Sale, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		// moved by another writer since it was listed
		w.log.Debug("Sale state moved since listing", zap.String("sale_code", sale.Code), zap.String("op", op))
		return nil
	default:
		w.log.ErrorContext(ctx, "Failed to resolve sale", zap.String("sale_code", sale.Code), zap.String("op", op), zap.Error(err))
		return err
	}
}

func (w *ExpiryWorker) record(at time.Time, result *SweepResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastScanTime = at
	w.lastResult = *result
	w.totalExpired += int64(result.Expired)
	w.totalReminded += int64(result.Reminded)
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		TotalReminded:    w.totalReminded,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastResult.Expired,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	TotalReminded    int64     `json:"total_reminded"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
