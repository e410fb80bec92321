package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

const (
	InviteCodeLength = 6

	defaultEndedGrace         = 5 * time.Minute
	defaultInviteCodeAttempts = 32
	externalCallTimeout       = 2 * time.Second
)

var errInviteCodesExhausted = &domain.Error{Kind: domain.KindInternal, Message: "could not allocate an invite code"}
var errRegistryClosed = &domain.Error{Kind: domain.KindInternal, Message: "server is shutting down"}

// InviteDirectory reserves invite codes in a store shared with other components.
type InviteDirectory interface {
	Reserve(ctx context.Context, code, gameID string) (bool, error)
	Release(ctx context.Context, code string) error
}

// InviteRefresher is implemented by directories whose reservations expire.
// Refresh reports false when code is no longer held for gameID.
type InviteRefresher interface {
	Refresh(ctx context.Context, code, gameID string) (bool, error)
}

// LifecycleNotifier is told when games are created, end, and are removed.
type LifecycleNotifier interface {
	Publish(ctx context.Context, evt domain.LifecycleEvent) error
}

// RegistryConfig tunes registry behaviour.
type RegistryConfig struct {
	// EndedGrace is how long an ended game stays reachable for reconnects.
	EndedGrace         time.Duration
	InviteCodeAttempts int
	BaseURL            string
	// InviteRefresh is how often live invite codes are refreshed in the directory.
	// Zero disables refreshing.
	InviteRefresh time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

func WithClock(clock clockwork.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

func WithScorer(scorer Scorer) RegistryOption {
	return func(r *Registry) { r.scorer = scorer }
}

func WithEmitter(emitter Emitter) RegistryOption {
	return func(r *Registry) { r.emitter = emitter }
}

func WithMetrics(metrics Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = metrics }
}

func WithInviteDirectory(directory InviteDirectory) RegistryOption {
	return func(r *Registry) { r.directory = directory }
}

func WithNotifier(notifier LifecycleNotifier) RegistryOption {
	return func(r *Registry) { r.notifier = notifier }
}

// WithInviteCodes overrides invite code generation.
func WithInviteCodes(next func() string) RegistryOption {
	return func(r *Registry) { r.codes = next }
}

func WithConfig(cfg RegistryConfig) RegistryOption {
	return func(r *Registry) { r.cfg = cfg }
}

// Registry owns every live session and the indexes used to route events to them.
type Registry struct {
	cfg       RegistryConfig
	clock     clockwork.Clock
	scorer    Scorer
	emitter   Emitter
	metrics   Metrics
	directory InviteDirectory
	notifier  LifecycleNotifier
	codes     func() string

	mu          sync.RWMutex
	closed      bool
	sessions    map[string]*Session
	invites     map[string]string
	connections map[string]string
	removals    map[string]clockwork.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry initializes an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		clock:       clockwork.NewRealClock(),
		scorer:      DefaultScorer(),
		emitter:     discardEmitter{},
		metrics:     noopMetrics{},
		directory:   localDirectory{},
		notifier:    noopNotifier{},
		codes:       randomInviteCode,
		sessions:    make(map[string]*Session),
		invites:     make(map[string]string),
		connections: make(map[string]string),
		removals:    make(map[string]clockwork.Timer),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.EndedGrace <= 0 {
		r.cfg.EndedGrace = defaultEndedGrace
	}
	if r.cfg.InviteCodeAttempts <= 0 {
		r.cfg.InviteCodeAttempts = defaultInviteCodeAttempts
	}
	if refresher, ok := r.directory.(InviteRefresher); ok && r.cfg.InviteRefresh > 0 {
		ticker := r.clock.NewTicker(r.cfg.InviteRefresh)
		go r.refreshInvites(refresher, ticker)
	}
	return r
}

func (r *Registry) refreshInvites(refresher InviteRefresher, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
		}
		r.mu.RLock()
		held := make(map[string]string, len(r.invites))
		for code, id := range r.invites {
			held[code] = id
		}
		r.mu.RUnlock()

		for code, id := range held {
			ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
			ok, err := refresher.Refresh(ctx, code, id)
			cancel()
			if err != nil {
				log.Warn().Err(err).Str("invite_code", code).Str("game_id", id).Msg("refresh invite code")
				continue
			}
			if !ok {
				log.Error().Str("invite_code", code).Str("game_id", id).Msg("invite code taken by another game")
			}
		}
	}
}

// Create starts a new session in the lobby for the given manager.
func (r *Registry) Create(ctx context.Context, quiz domain.Quiz, manager domain.Participant) (*Session, error) {
	if err := quiz.Validate(); err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Message: err.Error()}
	}
	if manager.ParticipantID == "" || manager.ConnectionID == "" {
		return nil, domain.ErrNotAuthorized
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errRegistryClosed
	}
	id := uuid.NewString()
	code, err := r.reserveCodeLocked(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	s := newSession(id, code, quiz, manager, sessionDeps{
		clock:   r.clock,
		scorer:  r.scorer,
		emitter: r.emitter,
		metrics: r.metrics,
		hooks:   r,
		baseURL: r.cfg.BaseURL,
	})
	r.sessions[id] = s
	r.invites[code] = id
	r.connections[manager.ConnectionID] = id
	r.mu.Unlock()

	r.metrics.SessionCreated()
	r.notify(domain.LifecycleEvent{Type: domain.LifecycleCreated, GameID: id, QuizID: quiz.ID, Subject: quiz.Subject})
	log.Info().Str("game_id", id).Str("invite_code", code).Str("quiz_id", quiz.ID).Msg("game created")
	return s, nil
}

func (r *Registry) reserveCodeLocked(ctx context.Context, gameID string) (string, error) {
	for i := 0; i < r.cfg.InviteCodeAttempts; i++ {
		code := r.codes()
		if _, taken := r.invites[code]; taken {
			continue
		}
		ok, err := r.directory.Reserve(ctx, code, gameID)
		if err != nil {
			return "", fmt.Errorf("reserve invite code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", errInviteCodesExhausted
}

// ByInviteCode resolves a session that is still accepting players.
func (r *Registry) ByInviteCode(code string) (*Session, error) {
	if !ValidInviteCode(code) {
		return nil, domain.ErrInvalidInviteCode
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.invites[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// ByGameID resolves a session by its game id.
func (r *Registry) ByGameID(gameID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[gameID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Resolve finds a session and checks that participantID belongs to it in role.
func (r *Registry) Resolve(ctx context.Context, gameID, participantID string, role domain.Role) (*Session, error) {
	s, err := r.ByGameID(gameID)
	if err != nil {
		return nil, err
	}
	ok, err := s.Identify(ctx, participantID, role)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return s, nil
}

// ByConnection resolves the session a transport connection is bound to.
func (r *Registry) ByConnection(connectionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.connections[connectionID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// Bind indexes a connection against a session.
func (r *Registry) Bind(connectionID, gameID string) {
	if connectionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[gameID]; ok {
		r.connections[connectionID] = gameID
	}
}

// Unbind drops a connection from the index.
func (r *Registry) Unbind(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, connectionID)
}

// MarkEmpty frees the session's invite code and schedules its removal after the grace period.
func (r *Registry) MarkEmpty(gameID string) {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	code := s.InviteCode()
	released := false
	if r.invites[code] == gameID {
		delete(r.invites, code)
		released = true
	}
	if _, scheduled := r.removals[gameID]; !scheduled {
		r.removals[gameID] = r.clock.AfterFunc(r.cfg.EndedGrace, func() { r.Remove(gameID) })
	}
	r.mu.Unlock()

	if released {
		r.release(code)
	}
}

// Remove tears a session down and drops every index pointing at it.
func (r *Registry) Remove(gameID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, gameID)
	code := s.InviteCode()
	released := false
	if r.invites[code] == gameID {
		delete(r.invites, code)
		released = true
	}
	for conn, id := range r.connections {
		if id == gameID {
			delete(r.connections, conn)
		}
	}
	if t, ok := r.removals[gameID]; ok {
		t.Stop()
		delete(r.removals, gameID)
	}
	r.mu.Unlock()

	s.Close()
	if released {
		r.release(code)
	}
	r.metrics.SessionRemoved()
	r.notify(domain.LifecycleEvent{Type: domain.LifecycleRemoved, GameID: gameID, QuizID: s.Quiz().ID, Subject: s.Quiz().Subject})
	log.Info().Str("game_id", gameID).Msg("game removed")
	return true
}

// Cleanup stops every session and its timers, then empties the registry.
// It waits for session loops to exit until ctx is done.
func (r *Registry) Cleanup(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	codes := make([]string, 0, len(r.invites))
	for code := range r.invites {
		codes = append(codes, code)
	}
	for _, t := range r.removals {
		t.Stop()
	}
	r.sessions = make(map[string]*Session)
	r.invites = make(map[string]string)
	r.connections = make(map[string]string)
	r.removals = make(map[string]clockwork.Timer)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	for _, code := range codes {
		r.release(code)
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Msg("registry cleanup interrupted")
			return
		}
	}
	log.Info().Int("sessions", len(sessions)).Msg("registry cleaned up")
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) sessionEnded(s *Session, final []domain.LeaderboardEntry) {
	r.MarkEmpty(s.ID())
	r.notify(domain.LifecycleEvent{
		Type:        domain.LifecycleEnded,
		GameID:      s.ID(),
		QuizID:      s.Quiz().ID,
		Subject:     s.Quiz().Subject,
		Leaderboard: final,
	})
}

func (r *Registry) release(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
	defer cancel()
	if err := r.directory.Release(ctx, code); err != nil {
		log.Warn().Err(err).Str("invite_code", code).Msg("release invite code")
	}
}

func (r *Registry) notify(evt domain.LifecycleEvent) {
	evt.At = r.clock.Now()
	ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
	defer cancel()
	if err := r.notifier.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("game_id", evt.GameID).Str("type", string(evt.Type)).Msg("publish lifecycle event")
	}
}

// ValidInviteCode reports whether code has the shape of an invite code.
func ValidInviteCode(code string) bool {
	if len(code) != InviteCodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func randomInviteCode() string {
	return fmt.Sprintf("%0*d", InviteCodeLength, rand.Intn(1_000_000))
}

type localDirectory struct{}

func (localDirectory) Reserve(context.Context, string, string) (bool, error) { return true, nil }
func (localDirectory) Release(context.Context, string) error { return nil }

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, domain.LifecycleEvent) error { return nil }
