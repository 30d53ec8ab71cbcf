package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when no summary exists for a prediction id.
var ErrNotFound = errors.New("prediction result not found")

// Store persists one PredictionSummary per prediction id. Put is an
// idempotent upsert: writing the same summary twice leaves the store in the
// same state as writing it once, which is what keeps duplicate queue
// deliveries harmless.
type Store interface {
	Put(ctx context.Context, summary PredictionSummary) error
	Get(ctx context.Context, predictionID string) (PredictionSummary, error)
}

// MemoryStore is an in-memory Store used in tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	summaries map[string]PredictionSummary
}

// NewMemoryStore creates a new in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries: make(map[string]PredictionSummary),
	}
}

// Put stores the summary under its prediction id.
func (s *MemoryStore) Put(ctx context.Context, summary PredictionSummary) error {
	if summary.PredictionID == "" {
		return errors.New("summary has no prediction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summary.PredictionID] = summary
	return nil
}

// Get retrieves the summary for a prediction id.
func (s *MemoryStore) Get(ctx context.Context, predictionID string) (PredictionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[predictionID]
	if !ok {
		return PredictionSummary{}, ErrNotFound
	}
	return summary, nil
}

// Len returns the number of stored summaries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.summaries)
}

// RedisStore is a Redis-backed Store. Summaries are JSON encoded under
// keyBase:<prediction_id> with a TTL, so a list-of-records labels attribute
// round-trips without any wire-level attribute typing.
type RedisStore struct {
	client  *redis.Client
	ttl     time.Duration
	keyBase string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration, keyBase string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	opts.MaxRetries = 5
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 2 * time.Second
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:  client,
		ttl:     ttl,
		keyBase: keyBase,
	}, nil
}

func (s *RedisStore) key(predictionID string) string {
	return s.keyBase + ":" + predictionID
}

// Put stores the summary under its prediction id. A plain SET makes the
// upsert idempotent: the same key and value converge to one record.
func (s *RedisStore) Put(ctx context.Context, summary PredictionSummary) error {
	if summary.PredictionID == "" {
		return errors.New("summary has no prediction id")
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if err := s.client.Set(ctx, s.key(summary.PredictionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store summary %s: %w", summary.PredictionID, err)
	}
	return nil
}

// Get retrieves the summary for a prediction id. A missing key is reported
// as ErrNotFound, not as a transport error.
func (s *RedisStore) Get(ctx context.Context, predictionID string) (PredictionSummary, error) {
	val, err := s.client.Get(ctx, s.key(predictionID)).Result()
	if err == redis.Nil {
		return PredictionSummary{}, ErrNotFound
	}
	if err != nil {
		return PredictionSummary{}, fmt.Errorf("failed to get summary %s: %w", predictionID, err)
	}

	var summary PredictionSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return PredictionSummary{}, fmt.Errorf("failed to unmarshal summary %s: %w", predictionID, err)
	}
	return summary, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*RedisStore)(nil)
