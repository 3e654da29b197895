package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/riderfin/riderfin/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server.
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a key from the cache
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

const userPlanTTL = 5 * time.Minute

func userPlanKey(userID uint) string {
	return fmt.Sprintf("user:%d:plan", userID)
}

// SetUserPlan caches the effective plan of a user for access checks.
func SetUserPlan(userID uint, plan string) error {
	return Set(userPlanKey(userID), plan, userPlanTTL)
}

// GetUserPlan returns the cached plan for a user, or redis.Nil if not cached.
func GetUserPlan(userID uint) (string, error) {
	return Get(userPlanKey(userID))
}

// InvalidateUserPlan drops the cached plan after a subscription mutation.
func InvalidateUserPlan(userID uint) {
	if err := Delete(userPlanKey(userID)); err != nil {
		log.Printf("failed to invalidate plan cache for user %d: %v", userID, err)
	}
}
