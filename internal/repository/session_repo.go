package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studylens-backend/internal/models"
	"studylens-backend/internal/session"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Save upserts the snapshot. An older snapshot never overwrites a newer one.
func (r *SessionRepo) Save(ctx context.Context, snap *models.SessionSnapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	query := `
		INSERT INTO study_sessions (id, video_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET video_id = EXCLUDED.video_id,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
		WHERE study_sessions.updated_at <= EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query, snap.ID, snap.VideoID, state, snap.CreatedAt, snap.UpdatedAt)
	return err
}

func (r *SessionRepo) Load(ctx context.Context, id uuid.UUID) (*models.SessionSnapshot, error) {
	var state []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM study_sessions WHERE id = $1`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}

	var snap models.SessionSnapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &snap, nil
}

func (r *SessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM study_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// DeleteIdle removes snapshots not updated since cutoff.
func (r *SessionRepo) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM study_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
