// Package engine implements the conversation state machine and session
// orchestration for the stylist bot. The engine is invoked once per inbound
// event, performs no background work, and serializes processing per user.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/stylebot/internal/domain"
	"github.com/veluna/stylebot/internal/provider"
	"github.com/veluna/stylebot/internal/store"
)

// Providers bundles the external capabilities the engine consumes.
type Providers struct {
	Vision     provider.VisionAnalyzer
	Search     provider.ProductSearch
	Compositor provider.GarmentCompositor
	Dispatcher provider.MessageDispatcher
}

// TurnEvent summarizes one processed conversational turn for the dashboard
// activity feed.
type TurnEvent struct {
	UserAddress string       `json:"user_address"`
	SessionID   string       `json:"session_id"`
	State       domain.State `json:"state"`
	Replies     int          `json:"replies"`
	At          time.Time    `json:"at"`
}

// Engine resolves inbound events against persisted sessions.
type Engine struct {
	repo      store.Repository
	providers Providers
	quota     Quota
	locks     *keyedMutex
	activity  chan<- TurnEvent
}

// New creates a conversation engine.
func New(repo store.Repository, providers Providers, quota Quota) *Engine {
	return &Engine{
		repo:      repo,
		providers: providers,
		quota:     quota,
		locks:     newKeyedMutex(),
	}
}

// SetActivityFeed attaches an optional channel receiving one TurnEvent per
// processed turn. Sends never block; events are dropped when the channel is
// full.
func (e *Engine) SetActivityFeed(ch chan<- TurnEvent) {
	e.activity = ch
}

// reply is one outbound message produced by a transition.
type reply struct {
	text     string
	mediaRef string
	kind     string
}

// outcome is the result of dispatching an inbound event against a state.
type outcome struct {
	next         domain.State
	contextPatch any // shallow-merged into the session context when non-nil
	clearContext bool
	replies      []reply
	analysis     *domain.ToneAnalysis // completed analysis to record on the user
	tryOnDone    bool
}

// HandleInboundEvent processes one inbound event to completion: loads the
// session, dispatches on its state, persists the new session and transcript,
// and delivers replies. Events for the same address are serialized; distinct
// addresses proceed in parallel.
func (e *Engine) HandleInboundEvent(ctx context.Context, ev domain.InboundEvent) error {
	if ev.From == "" {
		return errors.New("inbound event missing sender address")
	}

	// Delivery receipts are absorbed with zero side effects.
	if ev.IsStatusOnly() {
		slog.Debug("absorbed delivery receipt", "from", ev.From, "status", ev.Status)
		return nil
	}

	unlock := e.locks.lock(ev.From)
	defer unlock()

	user, err := e.ensureUser(ctx, ev.From)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", ev.From, err)
	}

	sess, err := e.repo.GetSession(ctx, ev.From)
	if err != nil {
		return fmt.Errorf("load session for %s: %w", ev.From, err)
	}
	if sess == nil {
		return e.coldStart(ctx, ev)
	}

	handler, ok := stateHandlers[sess.State]
	if !ok {
		// Defensive fallback: a stored state outside the enum resets the
		// flow rather than wedging the session.
		slog.Warn("session in unrecognized state, resetting to welcome",
			"user", ev.From, "session_id", sess.ID, "state", sess.State)
		handler = handleUnknownState
	}

	out := handler(ctx, e, user, sess, ev)
	return e.apply(ctx, sess, ev, out)
}

// ensureUser loads the user, registering a free-tier record on first contact.
func (e *Engine) ensureUser(ctx context.Context, address string) (*domain.User, error) {
	user, err := e.repo.GetUser(ctx, address)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()
	user = &domain.User{
		Address:   address,
		Tier:      domain.TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("registered new user", "address", address)
	return user, nil
}

// coldStart creates a fresh session at WELCOME and sends the menu. The
// triggering message is not processed further; the user resends their choice.
func (e *Engine) coldStart(ctx context.Context, ev domain.InboundEvent) error {
	now := time.Now()
	sess := &domain.Session{
		ID:              uuid.NewString(),
		UserAddress:     ev.From,
		State:           domain.StateWelcome,
		LastInteraction: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.repo.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrSessionExists) {
			// Lost a create race. The event is dropped after logging rather
			// than retried; the next message lands on the existing session.
			slog.Warn("dropped event after session create race", "user", ev.From)
			return nil
		}
		return fmt.Errorf("create session for %s: %w", ev.From, err)
	}

	slog.Info("session started", "user", ev.From, "session_id", sess.ID)

	e.recordInbound(ctx, sess, ev)
	welcome := reply{text: msgWelcomeMenu, kind: domain.KindWelcome}
	e.recordReply(ctx, sess, welcome)
	e.dispatch(ctx, ev.From, welcome)
	e.publish(sess, 1)
	return nil
}

// apply persists the outcome of a transition and delivers its replies.
func (e *Engine) apply(ctx context.Context, sess *domain.Session, ev domain.InboundEvent, out outcome) error {
	if !out.next.Valid() {
		return fmt.Errorf("transition produced undeclared state %q", out.next)
	}

	upd := store.SessionUpdate{State: &out.next, ClearContext: out.clearContext}
	if !out.clearContext && out.contextPatch != nil {
		patch, err := json.Marshal(out.contextPatch)
		if err != nil {
			return fmt.Errorf("encode context patch: %w", err)
		}
		upd.Context = patch
	}

	updated, err := e.repo.UpdateSession(ctx, sess.ID, upd)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			// Session vanished under us; drop this event, leave others alone.
			slog.Error("dropped event for missing session", "user", ev.From, "session_id", sess.ID)
			return nil
		}
		return fmt.Errorf("persist session %s: %w", sess.ID, err)
	}

	if out.analysis != nil {
		if err := e.repo.UpdateUserAnalysis(ctx, ev.From, out.analysis.Tone, out.analysis.Undertone); err != nil {
			return fmt.Errorf("record analysis for %s: %w", ev.From, err)
		}
	}
	if out.tryOnDone {
		if err := e.repo.IncrementTryOnCount(ctx, ev.From); err != nil {
			return fmt.Errorf("record try-on for %s: %w", ev.From, err)
		}
	}

	e.recordInbound(ctx, updated, ev)
	for _, r := range out.replies {
		e.recordReply(ctx, updated, r)
		e.dispatch(ctx, ev.From, r)
	}

	slog.Info("processed turn",
		"user", ev.From,
		"session_id", sess.ID,
		"from_state", sess.State,
		"to_state", out.next,
		"replies", len(out.replies),
	)
	e.publish(updated, len(out.replies))
	return nil
}

// recordInbound appends the user's message to the transcript when it carried
// content. Transcript failures are logged, not escalated: the transition has
// already been decided and the user should still get a reply.
func (e *Engine) recordInbound(ctx context.Context, sess *domain.Session, ev domain.InboundEvent) {
	if ev.Text == "" && !ev.HasMedia() {
		return
	}
	entry := &domain.TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Direction: domain.DirectionUser,
		Body:      ev.Text,
		MediaRef:  ev.MediaRef,
	}
	if err := e.repo.AppendTranscript(ctx, entry); err != nil {
		slog.Error("failed to append inbound transcript entry", "session_id", sess.ID, "error", err)
	}
}

func (e *Engine) recordReply(ctx context.Context, sess *domain.Session, r reply) {
	entry := &domain.TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: sess.ID,
		Direction: domain.DirectionSystem,
		Kind:      r.kind,
		Body:      r.text,
		MediaRef:  r.mediaRef,
	}
	if err := e.repo.AppendTranscript(ctx, entry); err != nil {
		slog.Error("failed to append reply transcript entry", "session_id", sess.ID, "error", err)
	}
}

// dispatch delivers one reply. Delivery is fire-and-forget: failures are
// logged once and never retried.
func (e *Engine) dispatch(ctx context.Context, address string, r reply) {
	if err := e.providers.Dispatcher.Send(ctx, address, r.text, r.mediaRef); err != nil {
		slog.Error("failed to deliver reply", "address", address, "error", err)
	}
}

func (e *Engine) publish(sess *domain.Session, replies int) {
	if e.activity == nil {
		return
	}
	select {
	case e.activity <- TurnEvent{
		UserAddress: sess.UserAddress,
		SessionID:   sess.ID,
		State:       sess.State,
		Replies:     replies,
		At:          time.Now(),
	}:
	default:
	}
}
