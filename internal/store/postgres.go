package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions and transcripts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL,
			user_a_id TEXT NOT NULL,
			user_b_id TEXT NOT NULL,
			avatar_a_name TEXT NOT NULL,
			avatar_b_name TEXT NOT NULL,
			moderator_name TEXT NOT NULL,
			status TEXT NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_match ON sessions (match_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			seq INTEGER NOT NULL,
			speaker_role TEXT NOT NULL,
			speaker_name TEXT NOT NULL,
			content TEXT NOT NULL,
			emotion_tags TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, seq)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, p Participants) (*Session, error) {
	sess := &Session{
		ID:            uuid.NewString(),
		MatchID:       p.MatchID,
		UserAID:       p.UserAID,
		UserBID:       p.UserBID,
		AvatarAName:   p.AvatarAName,
		AvatarBName:   p.AvatarBName,
		ModeratorName: p.ModeratorName,
		Status:        StatusScheduled,
		CreatedAt:     time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, match_id, user_a_id, user_b_id, avatar_a_name, avatar_b_name, moderator_name, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.MatchID, sess.UserAID, sess.UserBID,
		sess.AvatarAName, sess.AvatarBName, sess.ModeratorName,
		string(sess.Status), sess.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

const sessionColumns = `id, match_id, user_a_id, user_b_id, avatar_a_name, avatar_b_name, moderator_name, status, turn_count, end_reason, created_at, started_at, ended_at`

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, sessionID)
	return scanSession(row)
}

func (s *PostgresStore) AppendTurn(ctx context.Context, sessionID string, turn Turn) (*Turn, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var turnCount int
	err = tx.QueryRow(ctx,
		`SELECT status, turn_count FROM sessions WHERE id=$1 FOR UPDATE`, sessionID,
	).Scan(&status, &turnCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if Status(status) != StatusActive {
		return nil, ErrSessionNotActive
	}
	if turn.Seq != turnCount+1 {
		return nil, ErrInvalidSequence
	}

	turn.SessionID = sessionID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	if turn.EmotionTags == nil {
		turn.EmotionTags = []string{}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO turns (session_id, seq, speaker_role, speaker_name, content, emotion_tags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.SessionID, turn.Seq, string(turn.Role), turn.SpeakerName,
		turn.Content, turn.EmotionTags, turn.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE sessions SET turn_count=$2 WHERE id=$1`, sessionID, turn.Seq)
	if err != nil {
		return nil, fmt.Errorf("bump turn count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	saved := turn
	return &saved, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, sessionID string, next Status, reason EndReason) (*Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status change: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM sessions WHERE id=$1 FOR UPDATE`, sessionID,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if !CanTransition(Status(current), next) {
		return nil, ErrIllegalTransition
	}

	now := time.Now().UTC()
	switch {
	case next.Terminal():
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET status=$2, end_reason=$3, ended_at=$4 WHERE id=$1`,
			sessionID, string(next), string(reason), now)
	case next == StatusActive:
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET status=$2, started_at=COALESCE(started_at, $3) WHERE id=$1`,
			sessionID, string(next), now)
	default:
		_, err = tx.Exec(ctx,
			`UPDATE sessions SET status=$2 WHERE id=$1`, sessionID, string(next))
	}
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Transcript(ctx context.Context, sessionID string, fromSeq, limit int) ([]Turn, error) {
	if fromSeq < 1 {
		fromSeq = 1
	}
	query := `SELECT session_id, seq, speaker_role, speaker_name, content, emotion_tags, created_at
		 FROM turns WHERE session_id=$1 AND seq>=$2 ORDER BY seq`
	args := []any{sessionID, fromSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) SessionsForMatch(ctx context.Context, matchID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE match_id=$1 ORDER BY created_at`, matchID)
	if err != nil {
		return nil, fmt.Errorf("query sessions for match: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Messages(ctx context.Context, sessionID string, limit, offset int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, seq, speaker_role, speaker_name, content, emotion_tags, created_at
		 FROM turns WHERE session_id=$1 ORDER BY seq LIMIT $2 OFFSET $3`,
		sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var status string
	var reason *string
	err := row.Scan(
		&sess.ID, &sess.MatchID, &sess.UserAID, &sess.UserBID,
		&sess.AvatarAName, &sess.AvatarBName, &sess.ModeratorName,
		&status, &sess.TurnCount, &reason,
		&sess.CreatedAt, &sess.StartedAt, &sess.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = Status(status)
	if reason != nil {
		sess.EndReason = EndReason(*reason)
	}
	return &sess, nil
}

func scanTurns(rows pgx.Rows) ([]Turn, error) {
	out := []Turn{}
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.SessionID, &t.Seq, &role, &t.SpeakerName, &t.Content, &t.EmotionTags, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}
