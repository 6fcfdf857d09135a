package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fieldserve/booking-core/internal/config"
	"github.com/fieldserve/booking-core/internal/model"
	"github.com/fieldserve/booking-core/internal/repository"
)

// RedisStore — Redis-бэкенд кэша доступности. TTL возложен на Redis,
// протухание отдельно чистить не нужно.
type RedisStore struct {
	rdb *goredis.Client
}

var _ repository.AvailabilityCacheStore = (*RedisStore)(nil)

// NewRedisClient создаёт клиент по центральному конфигу и проверяет
// соединение.
func NewRedisClient(cfg config.RedisConfig) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *goredis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(businessID, serviceID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("avail:%s:%s:%s", businessID, serviceID, date.Format("2006-01-02"))
}

func (s *RedisStore) Get(
	ctx context.Context,
	businessID, serviceID uuid.UUID,
	date time.Time,
) (*model.AvailabilityCacheEntry, error) {
	raw, err := s.rdb.Get(ctx, key(businessID, serviceID, date)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var entry model.AvailabilityCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *model.AvailabilityCacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return s.rdb.Set(ctx, key(entry.BusinessID, entry.ServiceID, time.Time(entry.Date)), raw, ttl).Err()
}

func (s *RedisStore) Delete(
	ctx context.Context,
	businessID uuid.UUID,
	serviceID *uuid.UUID,
	date time.Time,
) error {
	if serviceID != nil {
		return s.rdb.Del(ctx, key(businessID, *serviceID, date)).Err()
	}

	// Все услуги за дату: проходим по ключам тенанта через SCAN.
	pattern := fmt.Sprintf("avail:%s:*:%s", businessID, date.Format("2006-01-02"))
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	// Redis сам выбрасывает ключи по TTL.
	return 0, nil
}
