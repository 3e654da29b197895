package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/riderfin/riderfin/app/models"
	"github.com/riderfin/riderfin/app/repository"
	"github.com/riderfin/riderfin/internal/pkg/billing"
)

// sweepSubscriptionRepo implements just enough of the repository for the
// sweep path. Lookup methods are unused here and report not-found.
type sweepSubscriptionRepo struct {
	mu   sync.Mutex
	rows []*models.Subscription

	sweeps int
}

func (r *sweepSubscriptionRepo) Create(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, sub)
	return nil
}

func (r *sweepSubscriptionRepo) CreateIfNoActive(sub *models.Subscription) (bool, error) {
	return true, r.Create(sub)
}

func (r *sweepSubscriptionRepo) GetByID(string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *sweepSubscriptionRepo) GetByAsaasSubscriptionID(string) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *sweepSubscriptionRepo) GetActiveByUserID(uint) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *sweepSubscriptionRepo) ListByUserID(uint) ([]models.Subscription, error) {
	return nil, nil
}

func (r *sweepSubscriptionRepo) MarkActive(string) (int64, error)   { return 0, nil }
func (r *sweepSubscriptionRepo) MarkInactive(string) (int64, error) { return 0, nil }
func (r *sweepSubscriptionRepo) Cancel(string) (int64, error)       { return 0, nil }
func (r *sweepSubscriptionRepo) CancelByID(string) (int64, error)   { return 0, nil }
func (r *sweepSubscriptionRepo) Restore(string) (int64, error)      { return 0, nil }

func (r *sweepSubscriptionRepo) ExpireDue(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	var count int64
	for _, row := range r.rows {
		if row.Status == models.SubscriptionActive && !row.PeriodEnd.After(now) {
			row.Status = models.SubscriptionExpired
			count++
		}
	}
	return count, nil
}

func (r *sweepSubscriptionRepo) ListExpiringWithin(now time.Time, window time.Duration) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	limit := now.Add(window)
	for _, row := range r.rows {
		if row.Status == models.SubscriptionActive && row.PeriodEnd.After(now) && !row.PeriodEnd.After(limit) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *sweepSubscriptionRepo) Stats() (*repository.SubscriptionStats, error) {
	return &repository.SubscriptionStats{}, nil
}

func (r *sweepSubscriptionRepo) sweepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweeps
}

func newSweepService(repo *sweepSubscriptionRepo) *billing.Service {
	return billing.NewService(repo, nil, nil, billing.Config{})
}

func seedRow(repo *sweepSubscriptionRepo, id string, status models.SubscriptionStatus, periodEnd time.Time) {
	repo.Create(&models.Subscription{
		ID:                  id,
		UserID:              1,
		PlanType:            models.PlanBasic,
		Status:              status,
		AsaasSubscriptionID: "asaas_" + id,
		PeriodStart:         periodEnd.Add(-30 * 24 * time.Hour),
		PeriodEnd:           periodEnd,
	})
}

func TestRunOnceExpiresDueSubscriptions(t *testing.T) {
	repo := &sweepSubscriptionRepo{}
	seedRow(repo, "due", models.SubscriptionActive, time.Now().Add(-time.Hour))
	seedRow(repo, "soon", models.SubscriptionActive, time.Now().Add(24*time.Hour))
	seedRow(repo, "inactive", models.SubscriptionInactive, time.Now().Add(-time.Hour))

	m := NewManager(newSweepService(repo), time.Hour)
	count, err := m.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired subscription, got %d", count)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, row := range repo.rows {
		switch row.ID {
		case "due":
			if row.Status != models.SubscriptionExpired {
				t.Errorf("due row: expected EXPIRED, got %s", row.Status)
			}
		case "soon":
			if row.Status != models.SubscriptionActive {
				t.Errorf("soon row: expected ACTIVE, got %s", row.Status)
			}
		case "inactive":
			if row.Status != models.SubscriptionInactive {
				t.Errorf("inactive row: expected INACTIVE, got %s", row.Status)
			}
		}
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	repo := &sweepSubscriptionRepo{}
	seedRow(repo, "due", models.SubscriptionActive, time.Now().Add(-time.Hour))

	m := NewManager(newSweepService(repo), time.Hour)
	if count, _ := m.RunOnce(context.Background()); count != 1 {
		t.Fatalf("first pass should expire 1 row, got %d", count)
	}
	if count, _ := m.RunOnce(context.Background()); count != 0 {
		t.Fatalf("second pass should find nothing, got %d", count)
	}
}

func TestStartStop(t *testing.T) {
	repo := &sweepSubscriptionRepo{}
	m := NewManager(newSweepService(repo), 10*time.Millisecond)

	m.Start()
	m.Start() // second Start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for repo.sweepCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if repo.sweepCount() == 0 {
		t.Fatal("expected at least one sweep pass while running")
	}

	m.Stop()
	m.Stop() // second Stop is a no-op

	after := repo.sweepCount()
	time.Sleep(50 * time.Millisecond)
	if repo.sweepCount() != after {
		t.Fatal("sweeps must not continue after Stop")
	}
}

func TestStartAfterStop(t *testing.T) {
	repo := &sweepSubscriptionRepo{}
	m := NewManager(newSweepService(repo), 10*time.Millisecond)

	m.Start()
	m.Stop()

	m.Start()
	deadline := time.Now().Add(2 * time.Second)
	for repo.sweepCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if repo.sweepCount() == 0 {
		t.Fatal("expected sweeps to resume after restart")
	}
	m.Stop()
}

func TestDefaultInterval(t *testing.T) {
	m := NewManager(newSweepService(&sweepSubscriptionRepo{}), 0)
	if m.interval != defaultInterval {
		t.Fatalf("expected fallback to %s, got %s", defaultInterval, m.interval)
	}
}
