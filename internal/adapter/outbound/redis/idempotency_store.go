package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uniedit/payflow/internal/domain/idempotency"
)

const idempotencyKeyPrefix = "payflow:idempotency:"

// finalizeRecord replaces a processing record of the same incarnation.
// KEYS[1] = record key; ARGV = id, encoded record.
var finalizeRecord = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return -1
end
local rec = cjson.decode(current)
if rec.id ~= ARGV[1] then
  return -1
end
if rec.status ~= 'processing' then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
return 1
`)

// deleteRecord removes the record only if it is still the given incarnation.
var deleteRecord = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return 0
end
if cjson.decode(current).id ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

type storedRecord struct {
	ID          string             `json:"id"`
	Key         string             `json:"key"`
	RequestHash string             `json:"request_hash"`
	Status      idempotency.Status `json:"status"`
	Response    []byte             `json:"response,omitempty"`
	StatusCode  int                `json:"status_code"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

// idempotencyStore implements idempotency.Store. Keys expire in Redis at
// the record's ExpiresAt, so DeleteExpired has nothing to do.
type idempotencyStore struct {
	client redis.UniversalClient
}

// NewIdempotencyStore creates a new Redis-backed idempotency store.
func NewIdempotencyStore(client redis.UniversalClient) idempotency.Store {
	return &idempotencyStore{client: client}
}

func encodeRecord(r *idempotency.Record) ([]byte, error) {
	return json.Marshal(storedRecord{
		ID:          r.ID.String(),
		Key:         r.Key,
		RequestHash: r.RequestHash,
		Status:      r.Status,
		Response:    r.Response,
		StatusCode:  r.StatusCode,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	})
}

func (s *idempotencyStore) Create(ctx context.Context, r *idempotency.Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	ttl := time.Until(r.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+r.Key, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create idempotency record: %w", err)
	}
	if !ok {
		return idempotency.ErrDuplicateKey
	}
	return nil
}

func (s *idempotencyStore) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	data, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, idempotency.ErrRecordNotFound
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return nil, fmt.Errorf("decode idempotency record id: %w", err)
	}
	return &idempotency.Record{
		ID:          id,
		Key:         stored.Key,
		RequestHash: stored.RequestHash,
		Status:      stored.Status,
		Response:    stored.Response,
		StatusCode:  stored.StatusCode,
		CreatedAt:   stored.CreatedAt,
		ExpiresAt:   stored.ExpiresAt,
	}, nil
}

func (s *idempotencyStore) Complete(ctx context.Context, r *idempotency.Record) error {
	return s.finalize(ctx, r)
}

func (s *idempotencyStore) Fail(ctx context.Context, r *idempotency.Record) error {
	return s.finalize(ctx, r)
}

func (s *idempotencyStore) finalize(ctx context.Context, r *idempotency.Record) error {
	data, err := encodeRecord(r)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	res, err := finalizeRecord.Run(ctx, s.client, []string{idempotencyKeyPrefix + r.Key}, r.ID.String(), data).Int()
	if err != nil {
		return fmt.Errorf("finalize idempotency record: %w", err)
	}
	switch res {
	case -1:
		return idempotency.ErrRecordNotFound
	case 0:
		return idempotency.ErrRecordFinalized
	default:
		return nil
	}
}

func (s *idempotencyStore) Delete(ctx context.Context, key string, id uuid.UUID) error {
	n, err := deleteRecord.Run(ctx, s.client, []string{idempotencyKeyPrefix + key}, id.String()).Int()
	if err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	if n == 0 {
		return idempotency.ErrRecordNotFound
	}
	return nil
}

func (s *idempotencyStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Compile-time check
var _ idempotency.Store = (*idempotencyStore)(nil)
