package billing

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// auditRecord is the structured shape of one audit log line. One line is
// emitted per notification regardless of outcome; operators diagnose missed
// status changes by searching these, not by chasing stack traces.
type auditRecord struct {
	Timestamp      string `json:"timestamp"`
	Event          string `json:"event"`
	Processed      bool   `json:"processed"`
	PaymentID      string `json:"payment_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// LogWebhook writes the audit line for a processed (or failed) notification.
// It never fails: a logging problem must not fail the webhook request.
func LogWebhook(n *Notification, processed bool, detail string) {
	rec := auditRecord{
		Timestamp: time.Now().Format(time.RFC3339),
		Processed: processed,
		Detail:    detail,
	}
	if n != nil {
		rec.Event = n.Event
		rec.PaymentID = n.PaymentID()
		rec.SubscriptionID = n.SubscriptionID()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		log.Errorf("[Billing] audit marshal failed: %v", err)
		return
	}
	if processed {
		log.Infof("[Billing] webhook processed: %s", line)
	} else {
		log.Errorf("[Billing] webhook failed: %s", line)
	}
}
