package memory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the PostgreSQL-backed memory store.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, userID, key, value string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_memories (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, userID, key, value)
	return err
}

func (s *PGStore) Recall(ctx context.Context, userID string, limit int) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT key, value FROM user_memories
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
