package server

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"fish-server/internal/fish"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PlayerRecord struct {
	ID     fish.PlayerID `json:"id"`
	Name   string        `json:"name"`
	UserID string        `json:"userId,omitempty"`
	Team   fish.Team     `json:"team"`
}

// GameRecord is what survives of a finished game.
type GameRecord struct {
	ID         string         `json:"id"`
	RoomCode   string         `json:"roomCode"`
	Winner     fish.Team      `json:"winner"`
	Claims     fish.Claims    `json:"claims"`
	Players    []PlayerRecord `json:"players"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// newGameRecord builds the record from the final snapshot. Players who left
// mid-game are no longer on a team and are not recorded. released are seats
// dropped from the roster at game over; they are still on their team.
func newGameRecord(snap RoomSnapshot, finishedAt time.Time, released ...Player) GameRecord {
	rec := GameRecord{
		ID:         uuid.New().String(),
		RoomCode:   snap.Code,
		FinishedAt: finishedAt.UTC(),
		Players:    []PlayerRecord{},
	}
	game := snap.GameState
	if game == nil {
		return rec
	}
	rec.Winner = game.Winner
	rec.Claims = game.ClaimedHalfSuits

	names := make(map[fish.PlayerID]Player, len(snap.Players)+len(released))
	for _, p := range released {
		names[p.ID] = p
	}
	for _, p := range snap.Players {
		names[p.ID] = p
	}
	for _, team := range []fish.Team{fish.TeamA, fish.TeamB} {
		for _, id := range game.Teams.Members(team) {
			p, ok := names[id]
			if !ok {
				continue
			}
			rec.Players = append(rec.Players, PlayerRecord{
				ID:     id,
				Name:   p.Name,
				UserID: p.UserID,
				Team:   team,
			})
		}
	}
	return rec
}

type HistoryStore interface {
	RecordGame(ctx context.Context, rec GameRecord) error
	RecentGames(ctx context.Context, limit int) ([]GameRecord, error)
	Close()
}

// NoopHistoryStore is used when no database is configured.
type NoopHistoryStore struct{}

func (NoopHistoryStore) RecordGame(context.Context, GameRecord) error { return nil }

func (NoopHistoryStore) RecentGames(context.Context, int) ([]GameRecord, error) {
	return []GameRecord{}, nil
}

func (NoopHistoryStore) Close() {}

type PostgresHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPostgresHistoryStore connects and applies pending migrations.
func NewPostgresHistoryStore(ctx context.Context, databaseURL string) (*PostgresHistoryStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresHistoryStore{pool: pool}, nil
}

// runMigrations applies the embedded goose migrations through a database/sql
// handle borrowed from the pool.
func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) RecordGame(ctx context.Context, rec GameRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Players == nil {
		rec.Players = []PlayerRecord{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO game_history (id, room_code, winner, claims, players, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.RoomCode, string(rec.Winner), rec.Claims, rec.Players, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record game %s: %w", rec.RoomCode, err)
	}
	return nil
}

func (s *PostgresHistoryStore) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, room_code, winner, claims, players, finished_at
		FROM game_history
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query game history: %w", err)
	}

	games, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (GameRecord, error) {
		var rec GameRecord
		var winner string
		err := row.Scan(&rec.ID, &rec.RoomCode, &winner, &rec.Claims, &rec.Players, &rec.FinishedAt)
		rec.Winner = fish.Team(winner)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read game history: %w", err)
	}
	return games, nil
}

func (s *PostgresHistoryStore) Close() {
	s.pool.Close()
}
