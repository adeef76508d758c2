package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "janus:key:"

// KeyStore looks up API key metadata by hash.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// CachedKeyStore implements KeyStore with PostgreSQL plus a Redis read
// cache. A nil Redis client skips caching.
type CachedKeyStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedKeyStore(db *pgxpool.Pool, rdb *redis.Client) *CachedKeyStore {
	return &CachedKeyStore{db: db, redis: rdb}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var meta KeyMetadata
			if err := json.Unmarshal(cached, &meta); err == nil {
				return &meta, nil
			}
		}
	}

	meta, err := s.lookupDB(ctx, keyHash)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	if s.redis != nil {
		if data, err := json.Marshal(meta); err == nil {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, redisCacheTTL)
		}
	}
	return meta, nil
}

func (s *CachedKeyStore) lookupDB(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	var meta KeyMetadata
	var allowedModelsJSON []byte
	var userID *string

	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, allowed_models, rpm_limit, expires_at
		FROM api_keys
		WHERE key_hash = $1
		  AND status = 'active'
		  AND expires_at > NOW()
	`, keyHash).Scan(
		&meta.ID,
		&userID,
		&meta.Name,
		&allowedModelsJSON,
		&meta.RPMLimit,
		&meta.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query api key: %w", err)
	}

	if userID != nil {
		meta.UserID = *userID
	}
	if len(allowedModelsJSON) > 0 {
		if err := json.Unmarshal(allowedModelsJSON, &meta.AllowedModels); err != nil {
			return nil, fmt.Errorf("parse allowed_models: %w", err)
		}
	}
	return &meta, nil
}

// InsertKey stores a newly generated key. Used by the keygen tool.
func (s *CachedKeyStore) InsertKey(ctx context.Context, keyHash, prefix string, meta *KeyMetadata) error {
	allowedModels, err := json.Marshal(meta.AllowedModels)
	if err != nil {
		return fmt.Errorf("marshal allowed_models: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO api_keys
			(id, key_hash, key_prefix, user_id, name, allowed_models, rpm_limit, status, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, 'active', $8)
	`, meta.ID, keyHash, prefix, meta.UserID, meta.Name, allowedModels, meta.RPMLimit, meta.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}
