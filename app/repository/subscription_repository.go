package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/riderfin/riderfin/app/models"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository backed by GORM.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *subscriptionRepository) CreateIfNoActive(sub *models.Subscription) (bool, error) {
	created := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&models.Subscription{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND status = ? AND period_end > ?",
				sub.UserID, models.SubscriptionActive, time.Now()).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return nil
		}
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *subscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByAsaasSubscriptionID(asaasSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("asaas_subscription_id = ?", asaasSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("user_id = ? AND status = ? AND period_end > ?", userID, models.SubscriptionActive, time.Now()).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByUserID(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// Webhook-driven transitions never move a row out of EXPIRED; expiration is
// final from the provider's perspective as well.

func (r *subscriptionRepository) MarkActive(asaasSubscriptionID string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("asaas_subscription_id = ? AND status <> ?", asaasSubscriptionID, models.SubscriptionExpired).
		Update("status", models.SubscriptionActive)
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) MarkInactive(asaasSubscriptionID string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("asaas_subscription_id = ? AND status <> ?", asaasSubscriptionID, models.SubscriptionExpired).
		Update("status", models.SubscriptionInactive)
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) Cancel(asaasSubscriptionID string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("asaas_subscription_id = ? AND status <> ?", asaasSubscriptionID, models.SubscriptionExpired).
		Updates(map[string]interface{}{
			"status":       models.SubscriptionInactive,
			"cancelled_at": gorm.Expr("IFNULL(cancelled_at, ?)", time.Now()),
		})
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) CancelByID(id string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status <> ?", id, models.SubscriptionExpired).
		Updates(map[string]interface{}{
			"status":       models.SubscriptionInactive,
			"cancelled_at": gorm.Expr("IFNULL(cancelled_at, ?)", time.Now()),
		})
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) Restore(asaasSubscriptionID string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("asaas_subscription_id = ? AND status = ? AND cancelled_at IS NULL",
			asaasSubscriptionID, models.SubscriptionInactive).
		Update("status", models.SubscriptionActive)
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) ExpireDue(now time.Time) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("status = ? AND period_end <= ?", models.SubscriptionActive, now).
		Update("status", models.SubscriptionExpired)
	return tx.RowsAffected, tx.Error
}

func (r *subscriptionRepository) ListExpiringWithin(now time.Time, window time.Duration) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND period_end > ? AND period_end <= ?",
			models.SubscriptionActive, now, now.Add(window)).
		Find(&subs).Error
	return subs, err
}

func (r *subscriptionRepository) Stats() (*SubscriptionStats, error) {
	stats := &SubscriptionStats{ByPlan: make(map[models.PlanType]int64)}

	if err := r.db.Model(&models.Subscription{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	for status, dest := range map[models.SubscriptionStatus]*int64{
		models.SubscriptionActive:   &stats.Active,
		models.SubscriptionInactive: &stats.Inactive,
		models.SubscriptionExpired:  &stats.Expired,
	} {
		if err := r.db.Model(&models.Subscription{}).Where("status = ?", status).Count(dest).Error; err != nil {
			return nil, err
		}
	}

	for _, plan := range []models.PlanType{models.PlanBasic, models.PlanPro, models.PlanPremium} {
		var n int64
		if err := r.db.Model(&models.Subscription{}).
			Where("plan_type = ? AND status = ?", plan, models.SubscriptionActive).
			Count(&n).Error; err != nil {
			return nil, err
		}
		stats.ByPlan[plan] = n
	}
	return stats, nil
}
