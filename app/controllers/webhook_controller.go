package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/riderfin/riderfin/internal/pkg/billing"
	counter "github.com/riderfin/riderfin/internal/pkg/metrics/counter"
)

var webhookService *billing.Service

// InitializeWebhookController injects the billing service used by the
// webhook endpoints.
func InitializeWebhookController(svc *billing.Service) {
	webhookService = svc
}

// HandleAsaasPaymentWebhook receives payment notifications from Asaas.
func HandleAsaasPaymentWebhook(c *fiber.Ctx) error {
	return handleAsaasWebhook(c, true)
}

// HandleAsaasSubscriptionWebhook receives subscription lifecycle
// notifications from Asaas.
func HandleAsaasSubscriptionWebhook(c *fiber.Ctx) error {
	return handleAsaasWebhook(c, false)
}

// handleAsaasWebhook is the shared ingestion pipeline: verify the signature
// on the raw bytes, parse into a typed notification, persist the audit row,
// route to the matching handler and acknowledge per the provider contract.
func handleAsaasWebhook(c *fiber.Ctx, wantPayment bool) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "asaas-signature", "asaas-access-token")

	// Nothing is touched before the signature checks out.
	if !billing.VerifyWebhookSignature(rawBody, signature, webhookService.Config().WebhookSecret) {
		log.Warn("[Webhook] rejected notification with invalid signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	n, err := billing.ParseNotification(rawBody)
	if err != nil {
		// Retrying an unparseable delivery can never succeed.
		if errors.Is(err, billing.ErrMalformedPayload) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed_payload"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if wantPayment && n.Payment == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed_payload", "message": "payment data missing"})
	}
	if !wantPayment && n.Subscription == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed_payload", "message": "subscription data missing"})
	}

	bumpCounter(counter.AddWebhookReceived, n.Event)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := webhookService.RecordWebhookEvent(ctx, n, rawBody)
	if err != nil {
		billing.LogWebhook(n, false, "audit persist failed: "+err.Error())
		bumpCounter(counter.AddWebhookFailed, n.Event)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "processing_failed", "detail": "could not persist notification"})
	}
	if !created {
		// Acknowledge only deliveries that already processed cleanly. A stored
		// row with a processing error is a failed attempt the provider is
		// retrying: fall through and reapply. The transitions are absolute
		// conditional writes, so replaying a half-applied delivery is safe.
		if stored.ProcessedAt != nil && stored.ProcessingError == "" {
			billing.LogWebhook(n, true, "duplicate delivery")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "processed", "duplicate": true})
		}
	}

	var processErr error
	if wantPayment {
		processErr = webhookService.ProcessPaymentEvent(ctx, n.Payment)
	} else {
		processErr = webhookService.ProcessSubscriptionEvent(ctx, n.Subscription)
	}
	if err := webhookService.MarkWebhookProcessed(ctx, stored.ID, processErr); err != nil {
		log.Errorf("[Webhook] failed to mark event %d processed: %v", stored.ID, err)
	}

	if processErr != nil {
		billing.LogWebhook(n, false, processErr.Error())
		bumpCounter(counter.AddWebhookFailed, n.Event)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "processing_failed", "detail": processErr.Error()})
	}

	billing.LogWebhook(n, true, "")
	bumpCounter(counter.AddWebhookProcessed, n.Event)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "processed"})
}

// bumpCounter is best-effort: metrics must never fail a webhook request.
func bumpCounter(fn func(string) error, eventType string) {
	if err := fn(eventType); err != nil {
		log.Warnf("[Webhook] counter update failed for %s: %v", eventType, err)
	}
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(c.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
