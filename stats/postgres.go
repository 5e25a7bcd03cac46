/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package stats

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connString and applies pending migrations.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

const recordQuery = `
INSERT INTO player_stats (player_id, wins, losses, draws, total_games, last_played)
VALUES ($1, $2, $3, $4, 1, now())
ON CONFLICT (player_id) DO UPDATE SET
	wins        = player_stats.wins + EXCLUDED.wins,
	losses      = player_stats.losses + EXCLUDED.losses,
	draws       = player_stats.draws + EXCLUDED.draws,
	total_games = player_stats.total_games + 1,
	last_played = EXCLUDED.last_played
RETURNING wins, losses, draws, total_games, last_played`

func (s *PostgresStore) Record(ctx context.Context, playerID string, outcome Outcome) (Tally, error) {
	if !outcome.Valid() {
		return Tally{}, ErrInvalidOutcome
	}

	var wins, losses, draws int
	switch outcome {
	case Win:
		wins = 1
	case Loss:
		losses = 1
	case Draw:
		draws = 1
	}

	t := Tally{PlayerID: playerID}
	row := s.pool.QueryRow(ctx, recordQuery, playerID, wins, losses, draws)

	err := row.Scan(&t.Wins, &t.Losses, &t.Draws, &t.TotalGames, &t.LastPlayed)
	if err != nil {
		return Tally{}, wrap(err)
	}

	return t, nil
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (Tally, error) {
	t := Tally{PlayerID: playerID}

	row := s.pool.QueryRow(ctx, "SELECT wins, losses, draws, total_games, last_played FROM player_stats WHERE player_id = $1", playerID)

	err := row.Scan(&t.Wins, &t.Losses, &t.Draws, &t.TotalGames, &t.LastPlayed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tally{}, ErrNotFound
		}
		return Tally{}, wrap(err)
	}

	return t, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnexpected, err)
}
