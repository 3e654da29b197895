package counter

import (
	"context"

	"github.com/riderfin/riderfin/internal/pkg/cache"
)

const (
	webhookReceivedKey  = "webhooks:counters:received"
	webhookProcessedKey = "webhooks:counters:processed"
	webhookFailedKey    = "webhooks:counters:failed"
)

// AddWebhookReceived increments the received counter for an event type.
func AddWebhookReceived(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookReceivedKey, eventType, 1).Err()
}

// AddWebhookProcessed increments the processed counter for an event type.
func AddWebhookProcessed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookProcessedKey, eventType, 1).Err()
}

// AddWebhookFailed increments the failed counter for an event type.
func AddWebhookFailed(eventType string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, webhookFailedKey, eventType, 1).Err()
}

// WebhookCounters reads all webhook counters, keyed by event type.
func WebhookCounters() (map[string]map[string]string, error) {
	ctx := context.Background()
	rdb := cache.GetClient()

	out := make(map[string]map[string]string, 3)
	for name, key := range map[string]string{
		"received":  webhookReceivedKey,
		"processed": webhookProcessedKey,
		"failed":    webhookFailedKey,
	} {
		vals, err := rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		out[name] = vals
	}
	return out, nil
}
