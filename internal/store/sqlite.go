package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/veluna/stylebot/internal/domain"
	"github.com/veluna/stylebot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes read-merge-write session updates and transcript seq assignment
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		address TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT 'free',
		skin_tone TEXT NOT NULL DEFAULT '',
		undertone TEXT NOT NULL DEFAULT '',
		analysis_count INTEGER NOT NULL DEFAULT 0,
		try_on_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		user_address TEXT NOT NULL UNIQUE,
		state TEXT NOT NULL,
		context TEXT,
		last_interaction INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_interaction ON sessions(last_interaction);

	CREATE TABLE IF NOT EXISTS transcript (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		direction TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		body TEXT NOT NULL,
		media_ref TEXT NOT NULL DEFAULT '',
		seq INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_transcript_kind ON transcript(kind);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by WhatsApp address.
func (s *SQLiteStore) GetUser(ctx context.Context, address string) (*domain.User, error) {
	query := `
		SELECT address, display_name, tier, skin_tone, undertone,
		       analysis_count, try_on_count, created_at, updated_at
		FROM users WHERE address = ?`

	row := s.db.QueryRowContext(ctx, query, address)

	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.Address, &user.DisplayName, &user.Tier, &user.SkinTone,
		&user.Undertone, &user.AnalysisCount, &user.TryOnCount,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record. Usage counters and the stored
// skin tone are owned by the engine's dedicated update methods and are not
// overwritten here.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (address, display_name, tier, skin_tone, undertone, analysis_count, try_on_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		display_name = excluded.display_name,
		tier = excluded.tier,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.Address, user.DisplayName, user.Tier, user.SkinTone, user.Undertone,
		user.AnalysisCount, user.TryOnCount,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateUserAnalysis stores a completed skin-tone classification and bumps
// the analysis counter atomically.
func (s *SQLiteStore) UpdateUserAnalysis(ctx context.Context, address, tone, undertone string) error {
	query := `
		UPDATE users
		SET skin_tone = ?, undertone = ?, analysis_count = analysis_count + 1, updated_at = ?
		WHERE address = ?`
	result, err := s.db.ExecContext(ctx, query, tone, undertone, time.Now().Unix(), address)
	if err != nil {
		return fmt.Errorf("update user analysis: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", address)
	}
	return nil
}

// IncrementTryOnCount bumps the try-on usage counter.
func (s *SQLiteStore) IncrementTryOnCount(ctx context.Context, address string) error {
	query := `UPDATE users SET try_on_count = try_on_count + 1, updated_at = ? WHERE address = ?`
	result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), address)
	if err != nil {
		return fmt.Errorf("increment try-on count: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user not found: %s", address)
	}
	return nil
}

// GetSession retrieves the active session for a user.
func (s *SQLiteStore) GetSession(ctx context.Context, userAddress string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_address, state, context, last_interaction, created_at, updated_at
		FROM sessions WHERE user_address = ?`
	return s.scanSession(s.db.QueryRowContext(ctx, query, userAddress))
}

func (s *SQLiteStore) getSessionByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `
		SELECT session_id, user_address, state, context, last_interaction, created_at, updated_at
		FROM sessions WHERE session_id = ?`
	return s.scanSession(s.db.QueryRowContext(ctx, query, sessionID))
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*domain.Session, error) {
	var session domain.Session
	var contextJSON sql.NullString
	var lastInteraction, createdAt, updatedAt int64

	err := row.Scan(
		&session.ID, &session.UserAddress, &session.State,
		&contextJSON, &lastInteraction, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if contextJSON.Valid && contextJSON.String != "" {
		session.Context = json.RawMessage(contextJSON.String)
	}
	session.LastInteraction = time.Unix(lastInteraction, 0)
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}

// CreateSession creates the session for a user. Each user has at most one
// live session; a second create fails with ErrSessionExists.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	existing, err := s.GetSession(ctx, session.UserAddress)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrSessionExists
	}

	var contextJSON interface{}
	if len(session.Context) > 0 {
		contextJSON = string(session.Context)
	}

	query := `
		INSERT INTO sessions (session_id, user_address, state, context, last_interaction, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		session.ID, session.UserAddress, session.State, contextJSON,
		session.LastInteraction.Unix(), session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSession applies a partial update. Context is shallow-merged into the
// stored payload key by key; ClearContext nulls it out instead.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sessionID string, upd SessionUpdate) (*domain.Session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	session, err := s.applySessionUpdate(ctx, sessionID, upd)
	if shared.IsSQLiteConflictError(err) {
		slog.Warn("session update hit SQLite conflict, retrying once", "session_id", sessionID)
		session, err = s.applySessionUpdate(ctx, sessionID, upd)
	}
	return session, err
}

func (s *SQLiteStore) applySessionUpdate(ctx context.Context, sessionID string, upd SessionUpdate) (*domain.Session, error) {
	existing, err := s.getSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrSessionNotFound
	}

	state := existing.State
	if upd.State != nil {
		state = *upd.State
	}

	var contextJSON interface{}
	merged := existing.Context
	switch {
	case upd.ClearContext:
		merged = nil
	case len(upd.Context) > 0:
		merged, err = mergeContext(existing.Context, upd.Context)
		if err != nil {
			return nil, fmt.Errorf("merge session context: %w", err)
		}
	}
	if len(merged) > 0 {
		contextJSON = string(merged)
	}

	now := time.Now()
	query := `
		UPDATE sessions
		SET state = ?, context = ?, last_interaction = ?, updated_at = ?
		WHERE session_id = ?`
	result, err := s.db.ExecContext(ctx, query, state, contextJSON, now.Unix(), now.Unix(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrSessionNotFound
	}

	existing.State = state
	existing.Context = merged
	existing.LastInteraction = now
	existing.UpdatedAt = now
	return existing, nil
}

// mergeContext shallow-merges patch into base at the top level. Keys in the
// patch win; keys absent from the patch survive.
func mergeContext(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(base) == 0 {
		return patch, nil
	}

	var baseMap, patchMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, fmt.Errorf("decode stored context: %w", err)
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, fmt.Errorf("decode context patch: %w", err)
	}
	for k, v := range patchMap {
		baseMap[k] = v
	}

	merged, err := json.Marshal(baseMap)
	if err != nil {
		return nil, fmt.Errorf("encode merged context: %w", err)
	}
	return merged, nil
}

// AppendTranscript appends one transcript entry, assigning the next
// per-session sequence number.
func (s *SQLiteStore) AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if entry.Kind == "" {
		entry.Kind = domain.KindText
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO transcript (id, session_id, direction, kind, body, media_ref, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM transcript WHERE session_id = ?),
			?)`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.Direction, entry.Kind,
		entry.Body, entry.MediaRef, entry.SessionID, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}

// UserCount returns the total number of users.
func (s *SQLiteStore) UserCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// RecentSessionCount returns sessions with activity inside the window.
func (s *SQLiteStore) RecentSessionCount(ctx context.Context, window time.Duration) (int64, error) {
	threshold := time.Now().Add(-window).Unix()
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE last_interaction >= ?`, threshold).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent sessions: %w", err)
	}
	return n, nil
}

// RecommendationCount returns the number of product lists sent to users.
func (s *SQLiteStore) RecommendationCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcript WHERE direction = ? AND kind = ?`,
		domain.DirectionSystem, domain.KindProductList).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recommendations: %w", err)
	}
	return n, nil
}
