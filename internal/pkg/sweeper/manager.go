// Package sweeper runs the periodic pass that demotes subscriptions whose
// paid period has elapsed. It is the only producer of the EXPIRED state.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/riderfin/riderfin/internal/pkg/billing"
)

const defaultInterval = time.Hour

// expiringWindow is how far ahead the sweep looks when logging subscriptions
// that are about to lapse.
const expiringWindow = 3 * 24 * time.Hour

// Manager owns the sweep ticker and its background goroutine.
type Manager struct {
	svc      *billing.Service
	interval time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a sweep manager. A non-positive interval falls back to
// the hourly default.
func NewManager(svc *billing.Service, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Manager{
		svc:      svc,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background sweep loop. Calling Start on a running
// manager is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate the stop channel so the manager can be restarted after Stop.
	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(m.interval)

	log.Infof("[Sweeper] starting expiration sweep every %s", m.interval)

	m.wg.Add(1)
	go m.worker()
}

// Stop halts the sweep loop and waits for an in-flight pass to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	log.Info("[Sweeper] stopped")
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ticker.C:
			if _, err := m.RunOnce(context.Background()); err != nil {
				log.Errorf("[Sweeper] sweep failed: %v", err)
			}
		case <-m.stopCh:
			return
		}
	}
}

// RunOnce performs one sweep pass. The underlying write is a single
// conditional UPDATE, so overlapping runs and racing webhook handlers are
// safe. Returns the number of subscriptions expired.
func (m *Manager) RunOnce(ctx context.Context) (int64, error) {
	count, err := m.svc.ExpireDueSubscriptions(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		log.Infof("[Sweeper] expired %d subscriptions", count)
	}

	expiring, err := m.svc.ListExpiringSoon(ctx, expiringWindow)
	if err != nil {
		log.Warnf("[Sweeper] expiring-soon lookup failed: %v", err)
		return count, nil
	}
	if len(expiring) > 0 {
		log.Infof("[Sweeper] %d subscriptions expire within %s", len(expiring), expiringWindow)
	}
	return count, nil
}
