// Package usage persists per-request accounting records. Persistence is
// best-effort: a missing database never blocks or fails a request.
package usage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/janus-gateway/internal/types"
)

const insertTimeout = 5 * time.Second

// Record is one completed request's accounting row.
type Record struct {
	RequestID        string
	APIKeyID         string
	UserID           string
	Model            string
	Path             string
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	FinishReason     string
	ErrKind          string
	Degraded         bool
	DurationMs       int64
}

// Store writes usage records and debug traces to PostgreSQL.
// A nil pool disables persistence.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Insert writes one usage record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_records
			(request_id, api_key_id, user_id, model, path,
			 prompt_tokens, completion_tokens, cost_usd,
			 finish_reason, err_kind, degraded, duration_ms)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12)
	`,
		rec.RequestID, rec.APIKeyID, rec.UserID, rec.Model, rec.Path,
		rec.PromptTokens, rec.CompletionTokens, rec.CostUSD,
		rec.FinishReason, rec.ErrKind, rec.Degraded, rec.DurationMs,
	)
	return err
}

// InsertAsync records usage off the request path. Failures are logged only.
func (s *Store) InsertAsync(rec Record) {
	if s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()
		if err := s.Insert(ctx, rec); err != nil {
			slog.Error("usage record insert failed",
				"request_id", rec.RequestID, "error", err)
		}
	}()
}

// InsertDebugEvents persists a request's decision trail when debug tracing
// is enabled. Best-effort.
func (s *Store) InsertDebugEvents(events []types.DebugEvent) {
	if s.db == nil || len(events) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				payload = []byte("{}")
			}
			if _, err := s.db.Exec(ctx, `
				INSERT INTO debug_events (request_id, ts, event, payload)
				VALUES ($1, $2, $3, $4)
			`, ev.RequestID, time.UnixMilli(ev.Timestamp), ev.Event, payload); err != nil {
				slog.Error("debug event insert failed",
					"request_id", ev.RequestID, "error", err)
				return
			}
		}
	}()
}
