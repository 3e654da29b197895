package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/riderfin/riderfin/app/models"
	"github.com/riderfin/riderfin/app/repository"
)

var (
	// ErrActiveSubscriptionExists enforces at most one ACTIVE subscription
	// per user, checked at creation time.
	ErrActiveSubscriptionExists = errors.New("user already has an active subscription")
	// ErrSubscriptionNotFound is returned for lookups that matched no row.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrNotSubscriptionOwner is returned when a user tries to cancel a
	// subscription belonging to someone else.
	ErrNotSubscriptionOwner = errors.New("subscription belongs to another user")
)

// Gateway is the narrow contract this service needs from the payment
// provider. The provider owns retries and delivery guarantees; we only issue
// bounded outbound calls.
type Gateway interface {
	CreateCustomer(ctx context.Context, name, email, cpfCnpj string) (string, error)
	CreateSubscription(ctx context.Context, customerID string, plan Plan) (string, error)
	CancelSubscription(ctx context.Context, asaasSubscriptionID string) error
	Health(ctx context.Context) error
}

// Config carries the injected billing settings so tests can supply a fixed
// secret and a fake gateway instead of reading process globals.
type Config struct {
	WebhookSecret string
}

// Service owns the subscription state machine and the webhook processing
// pipeline.
type Service struct {
	subs    repository.SubscriptionRepository
	events  repository.WebhookEventRepository
	gateway Gateway
	cfg     Config

	// onPlanChange is invoked with the owning user id after any transition
	// that can change entitlement. Used to drop the cached plan.
	onPlanChange func(userID uint)
}

// NewService creates a billing service from injected dependencies.
func NewService(subs repository.SubscriptionRepository, events repository.WebhookEventRepository, gateway Gateway, cfg Config) *Service {
	return &Service{subs: subs, events: events, gateway: gateway, cfg: cfg}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, cfg Config) *Service {
	repos := repository.NewRepositories(db)
	return NewService(repos.Subscription, repos.WebhookEvent, gateway, cfg)
}

// SetPlanChangeHook registers the entitlement-cache invalidation callback.
func (s *Service) SetPlanChangeHook(fn func(userID uint)) {
	s.onPlanChange = fn
}

// Config returns the injected configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) planChanged(userID uint) {
	if s.onPlanChange != nil && userID != 0 {
		s.onPlanChange(userID)
	}
}

// CreateSubscription creates the subscription on the provider and then the
// local ACTIVE row. The one-active-per-user invariant is enforced here.
func (s *Service) CreateSubscription(ctx context.Context, userID uint, planType models.PlanType, asaasCustomerID string) (*models.Subscription, error) {
	plan, err := GetPlan(planType)
	if err != nil {
		return nil, err
	}

	if _, err := s.subs.GetActiveByUserID(userID); err == nil {
		return nil, ErrActiveSubscriptionExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	asaasSubscriptionID, err := s.gateway.CreateSubscription(ctx, asaasCustomerID, plan)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:              userID,
		PlanType:            planType,
		Status:              models.SubscriptionActive,
		AsaasCustomerID:     asaasCustomerID,
		AsaasSubscriptionID: asaasSubscriptionID,
		PeriodStart:         now,
		PeriodEnd:           now.Add(plan.CycleLength),
	}
	created, err := s.subs.CreateIfNoActive(sub)
	if err != nil {
		return nil, err
	}
	if !created {
		// A concurrent checkout won the insert. Undo the remote subscription
		// this attempt created; failure is logged and self-heals via webhooks.
		cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.gateway.CancelSubscription(cancelCtx, asaasSubscriptionID); err != nil {
			log.Warnf("[Billing] could not cancel orphaned remote subscription %s: %v", asaasSubscriptionID, err)
		}
		return nil, ErrActiveSubscriptionExists
	}

	log.Infof("[Billing] subscription created: %s for user %d (plan %s)", sub.ID, userID, planType)
	s.planChanged(userID)
	return sub, nil
}

// CurrentSubscription returns the user's active subscription, if any.
func (s *Service) CurrentSubscription(ctx context.Context, userID uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.subs.GetActiveByUserID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	return sub, err
}

// SubscriptionHistory lists all subscriptions of a user, newest first. Rows
// are never hard-deleted, so this is the complete record.
func (s *Service) SubscriptionHistory(ctx context.Context, userID uint) ([]models.Subscription, error) {
	_ = ctx
	return s.subs.ListByUserID(userID)
}

// CancelSubscription cancels a subscription for its owner.
//
// The remote cancel and the local write are two independent steps across two
// systems. The remote call is bounded by a timeout and its failure is only
// logged: the local cancellation proceeds regardless, and a stale provider
// state self-heals via the next webhook for this subscription.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string, userID uint) (*models.Subscription, error) {
	sub, err := s.subs.GetByID(subscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotSubscriptionOwner
	}

	if sub.AsaasSubscriptionID != "" {
		remoteCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.gateway.CancelSubscription(remoteCtx, sub.AsaasSubscriptionID); err != nil {
			log.Warnf("[Billing] remote cancel failed for %s (local cancel proceeds): %v", sub.AsaasSubscriptionID, err)
		}
	}

	if _, err := s.subs.CancelByID(subscriptionID); err != nil {
		return nil, err
	}

	log.Infof("[Billing] subscription cancelled: %s", subscriptionID)
	s.planChanged(userID)
	return s.subs.GetByID(subscriptionID)
}

// UserPlan resolves the user's effective plan tier, or "" without an active
// subscription.
func (s *Service) UserPlan(ctx context.Context, userID uint) (string, error) {
	sub, err := s.CurrentSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(sub.PlanType), nil
}

// Stats aggregates subscription counts for operators.
func (s *Service) Stats(ctx context.Context) (*repository.SubscriptionStats, error) {
	_ = ctx
	return s.subs.Stats()
}

// ExpireDueSubscriptions is the expiration sweep: every ACTIVE row whose paid
// period has elapsed is flipped to EXPIRED in one conditional UPDATE, so
// overlapping sweep runs and racing webhook handlers stay safe. Returns the
// number of rows changed.
func (s *Service) ExpireDueSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	return s.subs.ExpireDue(now)
}

// ListExpiringSoon returns active subscriptions ending within the window,
// for renewal observability.
func (s *Service) ListExpiringSoon(ctx context.Context, window time.Duration) ([]models.Subscription, error) {
	_ = ctx
	return s.subs.ListExpiringWithin(time.Now(), window)
}

// RecordWebhookEvent persists one notification idempotently. The returned
// bool reports whether this delivery is new; duplicates are acknowledged
// without reprocessing.
func (s *Service) RecordWebhookEvent(ctx context.Context, n *Notification, raw []byte) (bool, *models.WebhookEvent, error) {
	_ = ctx
	event := &models.WebhookEvent{
		ProviderEventID: n.EventID,
		EventType:       n.Event,
		PaymentID:       n.PaymentID(),
		SubscriptionID:  n.SubscriptionID(),
		PayloadJSON:     string(raw),
	}
	return s.events.CreateIfNotExists(event)
}

// MarkWebhookProcessed stamps the audit row with the processing outcome.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.events.MarkProcessed(webhookEventID, errMsg)
}

// ProcessPaymentEvent applies a payment notification to the local state
// machine. Unknown events and events without a matching local row are
// successes: the provider must not retry deliveries we intentionally ignore.
func (s *Service) ProcessPaymentEvent(ctx context.Context, ev *PaymentEvent) error {
	sub, err := s.subs.GetByAsaasSubscriptionID(ev.AsaasSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Billing] no local subscription for %s (event %s), nothing to update", ev.AsaasSubscriptionID, ev.Event)
			return nil
		}
		return err
	}

	switch ev.Event {
	case EventPaymentReceived, EventPaymentConfirmed:
		return s.handlePaymentReceived(ctx, ev, sub)
	case EventPaymentFailed:
		return s.handlePaymentFailed(ctx, ev, sub)
	case EventPaymentOverdue:
		return s.handlePaymentOverdue(ctx, ev, sub)
	case EventPaymentDeleted:
		return s.handlePaymentDeleted(ctx, ev, sub)
	case EventPaymentRestored:
		return s.handlePaymentRestored(ctx, ev, sub)
	default:
		log.Infof("[Billing] ignoring unhandled payment event: %s", ev.Event)
		return nil
	}
}

// ProcessSubscriptionEvent handles subscription lifecycle notifications.
// Local state already reflects these through the payment events, so they are
// audit-only.
func (s *Service) ProcessSubscriptionEvent(ctx context.Context, ev *SubscriptionEvent) error {
	_ = ctx
	switch ev.Event {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled:
		log.Infof("[Billing] subscription lifecycle event audited: %s for %s", ev.Event, ev.AsaasSubscriptionID)
		return nil
	default:
		log.Infof("[Billing] ignoring unhandled subscription event: %s", ev.Event)
		return nil
	}
}

func (s *Service) handlePaymentReceived(ctx context.Context, ev *PaymentEvent, sub *models.Subscription) error {
	_ = ctx
	rows, err := s.subs.MarkActive(ev.AsaasSubscriptionID)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Infof("[Billing] payment %s for expired subscription %s, no state change", ev.PaymentID, sub.ID)
		return nil
	}
	log.Infof("[Billing] subscription activated: %s (payment %s)", sub.ID, ev.PaymentID)
	s.planChanged(sub.UserID)
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, ev *PaymentEvent, sub *models.Subscription) error {
	_ = ctx
	rows, err := s.subs.MarkInactive(ev.AsaasSubscriptionID)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Infof("[Billing] failed payment %s for expired subscription %s, no state change", ev.PaymentID, sub.ID)
		return nil
	}
	log.Warnf("[Billing] subscription suspended after failed payment: %s", sub.ID)
	s.planChanged(sub.UserID)
	return nil
}

func (s *Service) handlePaymentOverdue(ctx context.Context, ev *PaymentEvent, sub *models.Subscription) error {
	_ = ctx
	// Grace period signal only. The provider has not defined a deadline after
	// which an overdue payment should suspend the subscription; suspension
	// arrives as PAYMENT_FAILED or PAYMENT_DELETED.
	log.Warnf("[Billing] payment overdue for subscription %s (payment %s)", sub.ID, ev.PaymentID)
	return nil
}

func (s *Service) handlePaymentDeleted(ctx context.Context, ev *PaymentEvent, sub *models.Subscription) error {
	_ = ctx
	rows, err := s.subs.Cancel(ev.AsaasSubscriptionID)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Infof("[Billing] deleted payment %s for expired subscription %s, no state change", ev.PaymentID, sub.ID)
		return nil
	}
	log.Infof("[Billing] subscription cancelled after deleted payment: %s", sub.ID)
	s.planChanged(sub.UserID)
	return nil
}

func (s *Service) handlePaymentRestored(ctx context.Context, ev *PaymentEvent, sub *models.Subscription) error {
	_ = ctx
	// Failure is reversible, cancellation is not: the conditional update only
	// matches INACTIVE rows that were never explicitly cancelled.
	rows, err := s.subs.Restore(ev.AsaasSubscriptionID)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Infof("[Billing] restore for %s had no effect (cancelled, expired or already active)", sub.ID)
		return nil
	}
	log.Infof("[Billing] subscription reactivated: %s", sub.ID)
	s.planChanged(sub.UserID)
	return nil
}
