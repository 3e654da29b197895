package repository

import (
	"time"

	"github.com/riderfin/riderfin/app/models"
)

// SubscriptionStats aggregates subscription counts for the operator endpoint.
type SubscriptionStats struct {
	Total    int64                     `json:"total"`
	Active   int64                     `json:"active"`
	Inactive int64                     `json:"inactive"`
	Expired  int64                     `json:"expired"`
	ByPlan   map[models.PlanType]int64 `json:"by_plan"`
}

// SubscriptionRepository defines the database operations for subscriptions.
//
// Status transitions are expressed as single conditional UPDATEs scoped by the
// provider subscription id so concurrent webhook deliveries and the expiration
// sweep cannot lose updates. Each returns the number of rows changed.
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	// CreateIfNoActive inserts the row unless the user already has an ACTIVE
	// subscription, re-checking inside one transaction so two concurrent
	// checkouts cannot both insert. Returns whether the row was created.
	CreateIfNoActive(sub *models.Subscription) (bool, error)
	GetByID(id string) (*models.Subscription, error)
	GetByAsaasSubscriptionID(asaasSubscriptionID string) (*models.Subscription, error)
	GetActiveByUserID(userID uint) (*models.Subscription, error)
	ListByUserID(userID uint) ([]models.Subscription, error)

	// MarkActive sets status ACTIVE unless the row is EXPIRED.
	MarkActive(asaasSubscriptionID string) (int64, error)
	// MarkInactive sets status INACTIVE unless the row is EXPIRED.
	MarkInactive(asaasSubscriptionID string) (int64, error)
	// Cancel sets status INACTIVE and stamps cancelled_at once, unless EXPIRED.
	Cancel(asaasSubscriptionID string) (int64, error)
	// CancelByID is the explicit user-initiated variant of Cancel.
	CancelByID(id string) (int64, error)
	// Restore sets status ACTIVE only from INACTIVE and only when the row was
	// never explicitly cancelled.
	Restore(asaasSubscriptionID string) (int64, error)

	// ExpireDue flips every ACTIVE row with period_end <= now to EXPIRED.
	ExpireDue(now time.Time) (int64, error)
	// ListExpiringWithin returns ACTIVE rows whose period ends inside the window.
	ListExpiringWithin(now time.Time, window time.Duration) ([]models.Subscription, error)

	Stats() (*SubscriptionStats, error)
}

// WebhookEventRepository persists inbound notifications for audit and replay.
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless one with the same provider
	// event id already exists. Returns whether a new row was created plus the
	// stored row.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
	ListBySubscriptionID(asaasSubscriptionID string, limit int) ([]models.WebhookEvent, error)
}

// UserRepository defines the interface for user-related database operations.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	SetAsaasCustomerID(userID uint, customerID string) error
}
