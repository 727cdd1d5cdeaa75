package cas

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/srmgate/srmgate/core/domain"
)

// RedisRecordStore implements domain.RecordStore on a Redis instance shared
// by all front-ends.
type RedisRecordStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRecordStore creates a new Redis-based record store.
func NewRedisRecordStore(client *redis.Client, prefix string) *RedisRecordStore {
	if prefix == "" {
		prefix = "srmgate:record:"
	}
	return &RedisRecordStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRecordStore) key(id int64) string {
	return s.prefix + strconv.FormatInt(id, 10)
}

// Create stores payload under id unless the key already exists.
func (s *RedisRecordStore) Create(ctx context.Context, id int64, payload []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(id), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis record: create failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("redis record: %d: %w", id, domain.ErrRecordExists)
	}
	return nil
}

// Read returns the payload for id, or nil if the key does not exist.
func (s *RedisRecordStore) Read(ctx context.Context, id int64) ([]byte, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis record: read failed: %w", err)
	}
	return payload, nil
}

// RecordIDs scans the key space under the store's prefix. Keys whose suffix
// is not a record id are skipped.
func (s *RedisRecordStore) RecordIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		id, err := strconv.ParseInt(strings.TrimPrefix(iter.Val(), s.prefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis record: scan failed: %w", err)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Delete removes the key for id.
func (s *RedisRecordStore) Delete(ctx context.Context, id int64) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis record: delete failed: %w", err)
	}
	return nil
}
