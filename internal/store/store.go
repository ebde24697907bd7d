// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/veluna/stylebot/internal/domain"
)

var (
	// ErrSessionExists is returned by CreateSession when the user already has
	// a live session; callers must switch to update semantics.
	ErrSessionExists = errors.New("session already exists for user")

	// ErrSessionNotFound is returned by UpdateSession for an unknown session ID.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionUpdate is a partial session update. Context is shallow-merged into
// the stored context unless ClearContext is set, which nulls it out (used on
// WELCOME/ENDED resets).
type SessionUpdate struct {
	State        *domain.State
	Context      json.RawMessage
	ClearContext bool
}

// Repository defines the interface for persisting users, sessions, and the
// conversation transcript.
type Repository interface {
	// GetUser retrieves a user by WhatsApp address, nil when absent.
	GetUser(ctx context.Context, address string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateUserAnalysis records a completed skin-tone analysis: stores the
	// classification and increments the analysis counter in one statement.
	UpdateUserAnalysis(ctx context.Context, address, tone, undertone string) error

	// IncrementTryOnCount bumps the try-on usage counter.
	IncrementTryOnCount(ctx context.Context, address string) error

	// GetSession retrieves the user's active session, nil when absent.
	GetSession(ctx context.Context, userAddress string) (*domain.Session, error)

	// CreateSession creates the session for a user. Fails with
	// ErrSessionExists when one is already live for that user.
	CreateSession(ctx context.Context, session *domain.Session) error

	// UpdateSession applies a partial update and returns the stored session.
	// Fails with ErrSessionNotFound when the session is absent.
	UpdateSession(ctx context.Context, sessionID string, upd SessionUpdate) (*domain.Session, error)

	// AppendTranscript appends one entry; the store assigns Seq.
	AppendTranscript(ctx context.Context, entry *domain.TranscriptEntry) error

	// UserCount returns the total number of users.
	UserCount(ctx context.Context) (int64, error)

	// RecentSessionCount returns the number of sessions with activity inside
	// the window.
	RecentSessionCount(ctx context.Context, window time.Duration) (int64, error)

	// RecommendationCount returns the number of product lists sent to users.
	RecommendationCount(ctx context.Context) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
