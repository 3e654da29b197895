package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriptionStatus is the closed set of local subscription states. The
// payment provider remains the source of truth for money movement; these
// states mirror it via webhook notifications and the expiration sweep.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionInactive SubscriptionStatus = "INACTIVE"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
)

// IsValid reports whether the status is part of the closed enumeration.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionActive, SubscriptionInactive, SubscriptionExpired:
		return true
	default:
		return false
	}
}

// PlanType identifies a paid plan tier.
type PlanType string

const (
	PlanBasic   PlanType = "basic"
	PlanPro     PlanType = "pro"
	PlanPremium PlanType = "premium"
)

// IsValid reports whether the plan type is a known tier.
func (p PlanType) IsValid() bool {
	switch p {
	case PlanBasic, PlanPro, PlanPremium:
		return true
	default:
		return false
	}
}

// Subscription is the local record of a user's paid subscription. Rows are
// never hard-deleted; cancellation and expiration are status changes so the
// history read path keeps working.
type Subscription struct {
	ID                  string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID              uint               `gorm:"not null;index" json:"user_id" validate:"required"`
	PlanType            PlanType           `gorm:"type:varchar(20);not null" json:"plan_type" validate:"oneof=basic pro premium"`
	Status              SubscriptionStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status" validate:"oneof=ACTIVE INACTIVE EXPIRED"`
	AsaasCustomerID     string             `gorm:"type:varchar(100);not null" json:"asaas_customer_id" validate:"required"`
	AsaasSubscriptionID string             `gorm:"type:varchar(100);uniqueIndex" json:"asaas_subscription_id"`
	PeriodStart         time.Time          `gorm:"type:timestamp;not null" json:"period_start"`
	PeriodEnd           time.Time          `gorm:"type:timestamp;not null;index" json:"period_end"`
	CancelledAt         *time.Time         `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// BeforeCreate assigns the opaque public identifier.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsCancelled reports whether the subscription was explicitly cancelled.
// Cancellation is sticky: a cancelled subscription is never auto-reactivated.
func (s *Subscription) IsCancelled() bool {
	return s.CancelledAt != nil
}
