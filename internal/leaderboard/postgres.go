package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/kostky-backend/internal/engine"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/multierr"
)

var ErrUnexpectedDatabase = errors.New("unexpected database error")

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS game_results (
			id          BIGSERIAL PRIMARY KEY,
			room_code   TEXT        NOT NULL,
			player_id   TEXT        NOT NULL,
			name        TEXT        NOT NULL,
			score       INTEGER     NOT NULL,
			won         BOOLEAN     NOT NULL DEFAULT FALSE,
			finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS game_results_score_idx ON game_results (score DESC);`)
	if err != nil {
		return fmt.Errorf("migrate game_results: %w", err)
	}
	return nil
}

func (r *Postgres) RecordGame(ctx context.Context, code string, room engine.Room) error {
	entries := Entries(code, room, time.Now())
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO game_results (room_code, player_id, name, score, won, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.RoomCode, e.PlayerID, e.Name, e.Score, e.Won, e.FinishedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	var err error
	for range entries {
		if _, execErr := br.Exec(); execErr != nil {
			err = multierr.Append(err, execErr)
		}
	}
	err = multierr.Append(err, br.Close())
	if err != nil {
		return wrapDBError(fmt.Errorf("record game %s: %w", code, err))
	}
	return nil
}

func (r *Postgres) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		`SELECT room_code, player_id, name, score, won, finished_at
		 FROM game_results
		 ORDER BY score DESC, finished_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, wrapDBError(fmt.Errorf("top results: %w", err))
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RoomCode, &e.PlayerID, &e.Name, &e.Score, &e.Won, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func wrapDBError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w (sqlstate %s): %w", ErrUnexpectedDatabase, pgErr.Code, err)
	}
	return fmt.Errorf("%w: %w", ErrUnexpectedDatabase, err)
}
