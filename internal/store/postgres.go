package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/storyduet/storyduet-go/internal/domain"
	apperrors "github.com/storyduet/storyduet-go/pkg/errors"
	"go.uber.org/zap"
)

// PostgresStore is the durable persistence gateway for finished stories.
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func NewPostgresStore(cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("PostgreSQL connected",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	return &PostgresStore{
		db:     db,
		logger: logger,
	}, nil
}

// EnsureSchema creates the stories table when missing.
func (ps *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS stories (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			content     TEXT NOT NULL,
			creator_id  TEXT NOT NULL,
			mood        JSONB,
			style_match JSONB,
			genre       TEXT NOT NULL,
			game_mode   TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return apperrors.NewStoreError("failed to ensure schema", "ensure_schema", err)
	}
	return nil
}

// Save writes a finished story and returns its durable id. Writes without a
// creator are rejected before touching the database.
func (ps *PostgresStore) Save(ctx context.Context, story domain.StoryDraft) (string, error) {
	if story.CreatorID == "" {
		return "", apperrors.NewOwnershipError("story is missing a creator id")
	}
	if story.Title == "" {
		return "", apperrors.NewValidationError("story title must not be empty", "title", story.Title)
	}

	moodJSON, err := json.Marshal(story.Mood)
	if err != nil {
		return "", apperrors.NewStoreError("failed to encode mood", "save", err)
	}
	styleJSON, err := json.Marshal(story.StyleMatch)
	if err != nil {
		return "", apperrors.NewStoreError("failed to encode style match", "save", err)
	}

	id := uuid.NewString()
	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO stories (id, title, content, creator_id, mood, style_match, genre, game_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, story.Title, story.Content, story.CreatorID,
		moodJSON, styleJSON, string(story.Genre), string(story.GameMode),
	)
	if err != nil {
		ps.logger.Error("Story insert failed", zap.Error(err))
		return "", apperrors.NewStoreError("failed to save story", "save", err)
	}

	ps.logger.Info("Story saved",
		zap.String("story_id", id),
		zap.String("creator_id", story.CreatorID),
		zap.String("genre", string(story.Genre)),
	)

	return id, nil
}

// GetByID loads one saved story.
func (ps *PostgresStore) GetByID(ctx context.Context, id string) (*domain.StoryDraft, error) {
	row := ps.db.QueryRowContext(ctx, `
		SELECT title, content, creator_id, mood, style_match, genre, game_mode
		FROM stories WHERE id = $1`, id)

	var (
		story     domain.StoryDraft
		moodJSON  []byte
		styleJSON []byte
		genre     string
		mode      string
	)
	if err := row.Scan(&story.Title, &story.Content, &story.CreatorID, &moodJSON, &styleJSON, &genre, &mode); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewStoreError("failed to load story", "get", err)
	}

	if len(moodJSON) > 0 {
		if err := json.Unmarshal(moodJSON, &story.Mood); err != nil {
			return nil, apperrors.NewStoreError("failed to decode mood", "get", err)
		}
	}
	if len(styleJSON) > 0 {
		if err := json.Unmarshal(styleJSON, &story.StyleMatch); err != nil {
			return nil, apperrors.NewStoreError("failed to decode style match", "get", err)
		}
	}
	story.Genre = domain.Genre(genre)
	story.GameMode = domain.Mode(mode)

	return &story, nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
