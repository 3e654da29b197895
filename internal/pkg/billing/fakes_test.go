package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/riderfin/riderfin/app/models"
	"github.com/riderfin/riderfin/app/repository"
)

// memorySubscriptionRepo mirrors the conditional-update semantics of the GORM
// repository so the state machine can be exercised without a database.
type memorySubscriptionRepo struct {
	mu   sync.Mutex
	rows map[string]*models.Subscription // keyed by public id
}

func newMemorySubscriptionRepo() *memorySubscriptionRepo {
	return &memorySubscriptionRepo{rows: make(map[string]*models.Subscription)}
}

func (r *memorySubscriptionRepo) Create(sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	cp := *sub
	r.rows[sub.ID] = &cp
	return nil
}

func (r *memorySubscriptionRepo) CreateIfNoActive(sub *models.Subscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == sub.UserID && row.Status == models.SubscriptionActive && row.PeriodEnd.After(time.Now()) {
			return false, nil
		}
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	cp := *sub
	r.rows[sub.ID] = &cp
	return true, nil
}

func (r *memorySubscriptionRepo) GetByID(id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memorySubscriptionRepo) GetByAsaasSubscriptionID(asaasID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row := r.findByAsaasLocked(asaasID); row != nil {
		cp := *row
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memorySubscriptionRepo) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.UserID == userID && row.Status == models.SubscriptionActive && row.PeriodEnd.After(time.Now()) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memorySubscriptionRepo) ListByUserID(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, row := range r.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memorySubscriptionRepo) MarkActive(asaasID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.findByAsaasLocked(asaasID)
	if row == nil || row.Status == models.SubscriptionExpired {
		return 0, nil
	}
	row.Status = models.SubscriptionActive
	row.UpdatedAt = time.Now()
	return 1, nil
}

func (r *memorySubscriptionRepo) MarkInactive(asaasID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.findByAsaasLocked(asaasID)
	if row == nil || row.Status == models.SubscriptionExpired {
		return 0, nil
	}
	row.Status = models.SubscriptionInactive
	row.UpdatedAt = time.Now()
	return 1, nil
}

func (r *memorySubscriptionRepo) Cancel(asaasID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.findByAsaasLocked(asaasID)
	if row == nil || row.Status == models.SubscriptionExpired {
		return 0, nil
	}
	return r.cancelLocked(row), nil
}

func (r *memorySubscriptionRepo) CancelByID(id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.Status == models.SubscriptionExpired {
		return 0, nil
	}
	return r.cancelLocked(row), nil
}

func (r *memorySubscriptionRepo) cancelLocked(row *models.Subscription) int64 {
	row.Status = models.SubscriptionInactive
	if row.CancelledAt == nil {
		now := time.Now()
		row.CancelledAt = &now
	}
	row.UpdatedAt = time.Now()
	return 1
}

func (r *memorySubscriptionRepo) Restore(asaasID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.findByAsaasLocked(asaasID)
	if row == nil || row.Status != models.SubscriptionInactive || row.CancelledAt != nil {
		return 0, nil
	}
	row.Status = models.SubscriptionActive
	row.UpdatedAt = time.Now()
	return 1, nil
}

func (r *memorySubscriptionRepo) ExpireDue(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, row := range r.rows {
		if row.Status == models.SubscriptionActive && !row.PeriodEnd.After(now) {
			row.Status = models.SubscriptionExpired
			row.UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}

func (r *memorySubscriptionRepo) ListExpiringWithin(now time.Time, window time.Duration) ([]models.Subscription, error) {
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

func (r *memorySubscriptionRepo) Stats() (*repository.SubscriptionStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &repository.SubscriptionStats{ByPlan: make(map[models.PlanType]int64)}
	for _, row := range r.rows {
		stats.Total++
		switch row.Status {
		case models.SubscriptionActive:
			stats.Active++
			stats.ByPlan[row.PlanType]++
		case models.SubscriptionInactive:
			stats.Inactive++
		case models.SubscriptionExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

func (r *memorySubscriptionRepo) findByAsaasLocked(asaasID string) *models.Subscription {
	for _, row := range r.rows {
		if row.AsaasSubscriptionID == asaasID {
			return row
		}
	}
	return nil
}

// memoryWebhookEventRepo dedupes by provider event id like the DB unique key.
type memoryWebhookEventRepo struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.WebhookEvent
}

func newMemoryWebhookEventRepo() *memoryWebhookEventRepo {
	return &memoryWebhookEventRepo{events: make(map[string]*models.WebhookEvent)}
}

func (r *memoryWebhookEventRepo) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.events[event.ProviderEventID]; ok {
		cp := *stored
		return false, &cp, nil
	}
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now()
	cp := *event
	r.events[event.ProviderEventID] = &cp
	out := cp
	return true, &out, nil
}

func (r *memoryWebhookEventRepo) MarkProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryWebhookEventRepo) ListBySubscriptionID(asaasID string, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, ev := range r.events {
		if ev.SubscriptionID == asaasID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

// fakeGateway records outbound provider calls and can be told to fail.
type fakeGateway struct {
	mu sync.Mutex

	createdSubscriptions []string
	cancelled            []string

	createSubscriptionErr error
	cancelErr             error
	healthErr             error
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, name, email, cpfCnpj string) (string, error) {
	return "cus_fake", nil
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, customerID string, plan Plan) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createSubscriptionErr != nil {
		return "", g.createSubscriptionErr
	}
	id := "sub_fake_" + customerID
	g.createdSubscriptions = append(g.createdSubscriptions, id)
	return id, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, asaasSubscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, asaasSubscriptionID)
	return g.cancelErr
}

func (g *fakeGateway) Health(ctx context.Context) error {
	return g.healthErr
}
