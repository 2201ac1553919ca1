package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadchat/internal/domain"
)

var ErrLeadNotFound = errors.New("lead not found")

const (
	LeadSourceChat = "chat"
	LeadSourceForm = "form"
)

type Store struct {
	pool *pgxpool.Pool
}

type StoredLead struct {
	domain.LeadNotification
	Source  string     `json:"source"`
	AckedAt *time.Time `json:"acked_at,omitempty"`
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			session_id TEXT PRIMARY KEY,
			theme TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT 'collecting',
			close_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_user_active_at TIMESTAMPTZ,
			closed_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
			seq INT NOT NULL,
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session_seq ON chat_turns(session_id, seq);`,
		`CREATE TABLE IF NOT EXISTS leads (
			session_id TEXT PRIMARY KEY,
			theme TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			phone TEXT NOT NULL,
			need TEXT NOT NULL,
			close_reason TEXT,
			source TEXT NOT NULL DEFAULT 'chat',
			submitted_at TIMESTAMPTZ NOT NULL,
			acked_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_submitted ON leads(submitted_at DESC);`,
		`CREATE TABLE IF NOT EXISTS strategy_calls (
			id TEXT PRIMARY KEY,
			phone TEXT NOT NULL,
			selected_time TEXT NOT NULL,
			time_label TEXT,
			submitted_at TIMESTAMPTZ NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) StartSession(ctx context.Context, sessionID string, th domain.Theme, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_sessions(session_id, theme, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`, sessionID, string(th), at)
	return err
}

func (s *Store) SaveTurn(ctx context.Context, sessionID string, seq int, turn domain.Turn) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_turns(session_id, seq, speaker, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, seq) DO NOTHING
	`, sessionID, seq, string(turn.Speaker), turn.Text, turn.At)
	if err != nil {
		return err
	}

	if turn.Speaker == domain.SpeakerUser {
		_, err = s.pool.Exec(ctx, `
			UPDATE chat_sessions SET last_user_active_at=$2 WHERE session_id=$1
		`, sessionID, turn.At)
	}
	return err
}

// SaveLead stores a lead captured by the chat and closes its session row.
func (s *Store) SaveLead(ctx context.Context, n domain.LeadNotification) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertLead(ctx, tx, n, LeadSourceChat); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE chat_sessions
		SET phase='complete', close_reason=$2, closed_at=$3
		WHERE session_id=$1
	`, n.SessionID, nullIfEmpty(string(n.Reason)), n.SubmittedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SaveFormLead stores a lead posted directly by the site form. It has no chat
// session, so a fresh id is assigned when n carries none.
func (s *Store) SaveFormLead(ctx context.Context, n domain.LeadNotification) (string, error) {
	if n.SessionID == "" {
		n.SessionID = uuid.NewString()
	}
	if err := insertLead(ctx, s.pool, n, LeadSourceForm); err != nil {
		return "", err
	}
	return n.SessionID, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLead(ctx context.Context, db execer, n domain.LeadNotification, source string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO leads(session_id, theme, name, email, phone, need, close_reason, source, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING
	`, n.SessionID, string(n.Theme), n.Name, n.Email, n.Phone, n.Need, nullIfEmpty(string(n.Reason)), source, n.SubmittedAt)
	return err
}

func (s *Store) MarkLeadAcked(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE leads SET acked_at=$2 WHERE session_id=$1 AND acked_at IS NULL
	`, sessionID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE session_id=$1)`, sessionID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrLeadNotFound
		}
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, sessionID string) (StoredLead, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, theme, name, email, phone, need, COALESCE(close_reason, ''), source, submitted_at, acked_at
		FROM leads
		WHERE session_id=$1
	`, sessionID)
	out, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredLead{}, ErrLeadNotFound
	}
	return out, err
}

func (s *Store) ListLeads(ctx context.Context, limit int) ([]StoredLead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, theme, name, email, phone, need, COALESCE(close_reason, ''), source, submitted_at, acked_at
		FROM leads
		ORDER BY submitted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]StoredLead, 0, limit)
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Transcript(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT speaker, content, created_at
		FROM chat_turns
		WHERE session_id=$1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var speaker string
		if err := rows.Scan(&speaker, &t.Text, &t.At); err != nil {
			return nil, err
		}
		t.Speaker = domain.Speaker(speaker)
		t.At = t.At.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveStrategyCall(ctx context.Context, req domain.StrategyCallRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategy_calls(id, phone, selected_time, time_label, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, req.ID, req.PhoneNumber, req.SelectedTime, nullIfEmpty(req.TimeLabel), req.SubmittedAt)
	return err
}

func scanLead(row pgx.Row) (StoredLead, error) {
	var out StoredLead
	var theme, reason string
	var ackedAt *time.Time
	err := row.Scan(
		&out.SessionID,
		&theme,
		&out.Name,
		&out.Email,
		&out.Phone,
		&out.Need,
		&reason,
		&out.Source,
		&out.SubmittedAt,
		&ackedAt,
	)
	if err != nil {
		return StoredLead{}, err
	}
	out.Theme = domain.Theme(theme)
	out.Reason = domain.CloseReason(reason)
	out.SubmittedAt = out.SubmittedAt.UTC()
	if ackedAt != nil {
		utc := ackedAt.UTC()
		out.AckedAt = &utc
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
