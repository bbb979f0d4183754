package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"symptosafe/internal/analysis"
	"symptosafe/internal/safety"
)

const DefaultListLimit = 10

type Repository interface {
	Save(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// ListByUser returns the newest sessions first.
	ListByUser(ctx context.Context, userID string, limit int) ([]Session, error)
}

// sqlRepo works on both Postgres (lib/pq) and SQLite (modernc). JSON
// payloads are stored as text so the schema stays portable.
type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

const sessionColumns = `id, user_id, messages, analysis, emergency, user_message, risk_score, risk_level, primary_condition, language, created_at`

func (r *sqlRepo) Save(ctx context.Context, s *Session) error {
	messagesJSON, err := json.Marshal(s.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	analysisJSON, err := nullableJSON(s.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	emergencyJSON, err := nullableJSON(s.Emergency)
	if err != nil {
		return fmt.Errorf("marshal emergency: %w", err)
	}

	var primary sql.NullString
	if s.PrimaryCondition != nil {
		primary = sql.NullString{String: *s.PrimaryCondition, Valid: true}
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			messages = $3,
			analysis = $4,
			emergency = $5,
			user_message = $6,
			risk_score = $7,
			risk_level = $8,
			primary_condition = $9,
			language = $10
	`
	_, err = r.db.ExecContext(ctx, query,
		s.ID.String(), s.UserID, string(messagesJSON), analysisJSON, emergencyJSON,
		s.UserMessage, s.RiskScore, string(s.RiskLevel), primary, s.Language, s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *sqlRepo) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *sqlRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                       Session
		id, messagesJSON, level string
		analysisJSON, emergJSON sql.NullString
		primary                 sql.NullString
	)
	err := row.Scan(
		&id,
		&s.UserID,
		&messagesJSON,
		&analysisJSON,
		&emergJSON,
		&s.UserMessage,
		&s.RiskScore,
		&level,
		&primary,
		&s.Language,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	s.RiskLevel = analysis.RiskLevel(level)
	s.CreatedAt = s.CreatedAt.UTC()

	if err := json.Unmarshal([]byte(messagesJSON), &s.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if analysisJSON.Valid {
		var res analysis.Result
		if err := json.Unmarshal([]byte(analysisJSON.String), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
		s.Analysis = &res
	}
	if emergJSON.Valid {
		var e safety.EmergencyResult
		if err := json.Unmarshal([]byte(emergJSON.String), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal emergency: %w", err)
		}
		s.Emergency = &e
	}
	if primary.Valid {
		p := primary.String
		s.PrimaryCondition = &p
	}
	return &s, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
