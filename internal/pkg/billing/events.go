package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

// Asaas webhook event names handled by this service. Anything else is
// acknowledged and audited without a state change.
const (
	EventPaymentReceived  = "PAYMENT_RECEIVED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentFailed    = "PAYMENT_FAILED"
	EventPaymentOverdue   = "PAYMENT_OVERDUE"
	EventPaymentDeleted   = "PAYMENT_DELETED"
	EventPaymentRestored  = "PAYMENT_RESTORED"

	EventSubscriptionCreated   = "SUBSCRIPTION_CREATED"
	EventSubscriptionUpdated   = "SUBSCRIPTION_UPDATED"
	EventSubscriptionCancelled = "SUBSCRIPTION_CANCELLED"
)

// ErrMalformedPayload marks a notification that can never become valid by
// retrying: the body parsed as JSON but carries no recognizable fragment.
var ErrMalformedPayload = errors.New("webhook payload has no payment or subscription data")

// PaymentEvent is a typed payment notification. Only the identifiers that
// drive local state are extracted; the provider payload stays loosely typed.
type PaymentEvent struct {
	Event               string
	PaymentID           string
	AsaasSubscriptionID string
	Status              string
}

// SubscriptionEvent is a typed subscription lifecycle notification.
type SubscriptionEvent struct {
	Event               string
	AsaasSubscriptionID string
	Status              string
}

// Notification is the parsed form of one webhook delivery. Exactly one of
// Payment and Subscription is set for well-formed payloads.
type Notification struct {
	EventID      string
	Event        string
	Payment      *PaymentEvent
	Subscription *SubscriptionEvent
}

type rawNotification struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment *struct {
		ID           string `json:"id"`
		Subscription string `json:"subscription"`
		Status       string `json:"status"`
	} `json:"payment"`
	Subscription *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"subscription"`
}

// ParseNotification decodes a webhook body into a typed notification. A body
// that is not valid JSON returns the decode error; valid JSON without a
// payment or subscription fragment returns ErrMalformedPayload.
func ParseNotification(raw []byte) (*Notification, error) {
	var rn rawNotification
	if err := json.Unmarshal(raw, &rn); err != nil {
		return nil, err
	}

	n := &Notification{
		EventID: strings.TrimSpace(rn.ID),
		Event:   strings.TrimSpace(rn.Event),
	}
	if n.EventID == "" {
		// Older provider payloads carry no event id; derive a stable one from
		// the body so duplicate deliveries still dedupe.
		sum := sha256.Sum256(raw)
		n.EventID = "hash:" + hex.EncodeToString(sum[:])
	}

	if rn.Payment != nil {
		n.Payment = &PaymentEvent{
			Event:               n.Event,
			PaymentID:           strings.TrimSpace(rn.Payment.ID),
			AsaasSubscriptionID: strings.TrimSpace(rn.Payment.Subscription),
			Status:              strings.TrimSpace(rn.Payment.Status),
		}
		return n, nil
	}
	if rn.Subscription != nil {
		n.Subscription = &SubscriptionEvent{
			Event:               n.Event,
			AsaasSubscriptionID: strings.TrimSpace(rn.Subscription.ID),
			Status:              strings.TrimSpace(rn.Subscription.Status),
		}
		return n, nil
	}
	return nil, ErrMalformedPayload
}

// PaymentID returns the provider payment id, if the notification carries one.
func (n *Notification) PaymentID() string {
	if n.Payment != nil {
		return n.Payment.PaymentID
	}
	return ""
}

// SubscriptionID returns the provider subscription id used as the join key to
// the local row.
func (n *Notification) SubscriptionID() string {
	if n.Payment != nil {
		return n.Payment.AsaasSubscriptionID
	}
	if n.Subscription != nil {
		return n.Subscription.AsaasSubscriptionID
	}
	return ""
}
