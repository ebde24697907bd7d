package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veluna/stylebot/internal/domain"
	"github.com/veluna/stylebot/internal/store"
)

// fakeRepo is an in-memory Repository mirroring the SQLite store's
// semantics, including the shallow context merge.
type fakeRepo struct {
	mu         sync.Mutex
	users      map[string]*domain.User
	sessions   map[string]*domain.Session // keyed by user address
	byID       map[string]*domain.Session
	transcript []domain.TranscriptEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]*domain.Session),
		byID:     make(map[string]*domain.Session),
	}
}

func (r *fakeRepo) GetUser(_ context.Context, address string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[address]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.Address] = &copied
	return nil
}

func (r *fakeRepo) UpdateUserAnalysis(_ context.Context, address, tone, undertone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[address]
	if !ok {
		return fmt.Errorf("user not found: %s", address)
	}
	u.SkinTone = tone
	u.Undertone = undertone
	u.AnalysisCount++
	return nil
}

func (r *fakeRepo) IncrementTryOnCount(_ context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[address]
	if !ok {
		return fmt.Errorf("user not found: %s", address)
	}
	u.TryOnCount++
	return nil
}

func (r *fakeRepo) GetSession(_ context.Context, userAddress string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userAddress]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (r *fakeRepo) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.UserAddress]; ok {
		return store.ErrSessionExists
	}
	copied := *session
	r.sessions[session.UserAddress] = &copied
	r.byID[session.ID] = &copied
	return nil
}

func (r *fakeRepo) UpdateSession(_ context.Context, sessionID string, upd store.SessionUpdate) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[sessionID]
	if !ok {
		return nil, store.ErrSessionNotFound
	}
	if upd.State != nil {
		s.State = *upd.State
	}
	switch {
	case upd.ClearContext:
		s.Context = nil
	case len(upd.Context) > 0:
		merged, err := mergeRaw(s.Context, upd.Context)
		if err != nil {
			return nil, err
		}
		s.Context = merged
	}
	s.LastInteraction = time.Now()
	s.UpdatedAt = s.LastInteraction
	copied := *s
	return &copied, nil
}

func mergeRaw(base, patch json.RawMessage) (json.RawMessage, error) {
	if len(base) == 0 {
		return patch, nil
	}
	var baseMap, patchMap map[string]json.RawMessage
	if err := json.Unmarshal(base, &baseMap); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patch, &patchMap); err != nil {
		return nil, err
	}
	for k, v := range patchMap {
		baseMap[k] = v
	}
	return json.Marshal(baseMap)
}

func (r *fakeRepo) AppendTranscript(_ context.Context, entry *domain.TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := *entry
	e.Seq = int64(len(r.transcript) + 1)
	r.transcript = append(r.transcript, e)
	return nil
}

func (r *fakeRepo) UserCount(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

func (r *fakeRepo) RecentSessionCount(_ context.Context, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}

func (r *fakeRepo) RecommendationCount(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.transcript {
		if e.Direction == domain.DirectionSystem && e.Kind == domain.KindProductList {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Ping(_ context.Context) error { return nil }
func (r *fakeRepo) Close() error                 { return nil }

func (r *fakeRepo) transcriptLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transcript)
}

func (r *fakeRepo) systemEntries() []domain.TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TranscriptEntry
	for _, e := range r.transcript {
		if e.Direction == domain.DirectionSystem {
			out = append(out, e)
		}
	}
	return out
}

// Fake providers.

type fakeVision struct {
	mu       sync.Mutex
	analysis *domain.ToneAnalysis
	err      error
	calls    int
}

func (v *fakeVision) Analyze(_ context.Context, _ string) (*domain.ToneAnalysis, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.analysis, nil
}

type fakeSearch struct {
	mu       sync.Mutex
	products []domain.Product
	err      error
	calls    int
}

func (s *fakeSearch) Search(_ context.Context, _ string, _ domain.BudgetRange) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.products, nil
}

type fakeCompositor struct {
	mu          sync.Mutex
	resultRef   string
	err         error
	calls       int
	lastBody    string
	lastGarment string
}

func (c *fakeCompositor) Compose(_ context.Context, bodyImageRef, garment string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastBody = bodyImageRef
	c.lastGarment = garment
	if c.err != nil {
		return "", c.err
	}
	return c.resultRef, nil
}

type sentMessage struct {
	Address  string
	Text     string
	MediaRef string
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, address, text, mediaRef string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentMessage{Address: address, Text: text, MediaRef: mediaRef})
	return d.err
}

func (d *fakeDispatcher) sentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *fakeDispatcher) lastSent() sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return sentMessage{}
	}
	return d.sent[len(d.sent)-1]
}

// testEnv bundles an engine with its fakes.
type testEnv struct {
	engine     *Engine
	repo       *fakeRepo
	vision     *fakeVision
	search     *fakeSearch
	compositor *fakeCompositor
	dispatcher *fakeDispatcher
}

func newTestEnv() *testEnv {
	repo := newFakeRepo()
	vision := &fakeVision{analysis: &domain.ToneAnalysis{
		Tone:              "Medium Brown",
		Undertone:         "Neutral",
		RecommendedColors: []string{"Navy Blue", "Emerald Green"},
		ColorsToAvoid:     []string{"Bright Orange"},
	}}
	search := &fakeSearch{products: []domain.Product{
		{Title: "Linen Shirt", Price: "$39", Brand: "Arlo", Link: "https://shop.example/1"},
	}}
	compositor := &fakeCompositor{resultRef: "media://tryon-result-1"}
	dispatcher := &fakeDispatcher{}

	eng := New(repo, Providers{
		Vision:     vision,
		Search:     search,
		Compositor: compositor,
		Dispatcher: dispatcher,
	}, DefaultQuota())

	return &testEnv{
		engine:     eng,
		repo:       repo,
		vision:     vision,
		search:     search,
		compositor: compositor,
		dispatcher: dispatcher,
	}
}

// seedUser registers a user directly in the fake store.
func (env *testEnv) seedUser(address string, tier domain.Tier) *domain.User {
	u := &domain.User{
		Address:   address,
		Tier:      tier,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = env.repo.UpsertUser(context.Background(), u)
	return u
}

// seedSession places a session directly in the fake store. contextValue may
// be nil.
func (env *testEnv) seedSession(address string, state domain.State, contextValue any) *domain.Session {
	var raw json.RawMessage
	if contextValue != nil {
		raw, _ = json.Marshal(contextValue)
	}
	s := &domain.Session{
		ID:              uuid.NewString(),
		UserAddress:     address,
		State:           state,
		Context:         raw,
		LastInteraction: time.Now(),
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	_ = env.repo.CreateSession(context.Background(), s)
	return s
}

// seedBack forcibly rewinds a user's session state between test rounds.
func (env *testEnv) seedBack(address string, state domain.State) {
	env.repo.mu.Lock()
	defer env.repo.mu.Unlock()
	if s, ok := env.repo.sessions[address]; ok {
		s.State = state
	}
}

func (env *testEnv) session(address string) *domain.Session {
	s, _ := env.repo.GetSession(context.Background(), address)
	return s
}

func (env *testEnv) user(address string) *domain.User {
	u, _ := env.repo.GetUser(context.Background(), address)
	return u
}
