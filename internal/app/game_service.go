package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// Authenticator checks the manager secret.
type Authenticator interface {
	Authenticate(ctx context.Context, secret string) error
}

// Emitter delivers outbound events. Rooms are keyed by game id.
type Emitter interface {
	Subscribe(gameID, connectionID string)
	Unsubscribe(gameID, connectionID string)
	Broadcast(gameID string, evt domain.Event)
	Send(connectionID string, evt domain.Event)
	CloseRoom(gameID string)
}

// Metrics receives engine counters.
type Metrics interface {
	SessionCreated()
	SessionRemoved()
	PlayerJoined()
	AnswerRecorded(correct bool)
	AnswerRejected()
	RoundRevealed()
}

type discardEmitter struct{}

func (discardEmitter) Subscribe(string, string) {}
func (discardEmitter) Unsubscribe(string, string) {}
func (discardEmitter) Broadcast(string, domain.Event) {}
func (discardEmitter) Send(string, domain.Event) {}
func (discardEmitter) CloseRoom(string) {}

type noopMetrics struct{}

func (noopMetrics) SessionCreated() {}
func (noopMetrics) SessionRemoved() {}
func (noopMetrics) PlayerJoined() {}
func (noopMetrics) AnswerRecorded(bool) {}
func (noopMetrics) AnswerRejected() {}
func (noopMetrics) RoundRevealed() {}

// GameService contains the use cases behind every inbound event.
type GameService struct {
	registry *Registry
	quizzes  QuizRepository
	auth     Authenticator
	emitter  Emitter

	mu       sync.Mutex
	managers map[string]struct{}
}

func NewGameService(registry *Registry, quizzes QuizRepository, auth Authenticator, emitter Emitter) *GameService {
	if emitter == nil {
		emitter = discardEmitter{}
	}
	return &GameService{
		registry: registry,
		quizzes:  quizzes,
		auth:     auth,
		emitter:  emitter,
		managers: make(map[string]struct{}),
	}
}

// Handle runs cmd on behalf of sender. Failures are reported to the sender only.
func (g *GameService) Handle(ctx context.Context, sender domain.Participant, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("command", cmd.Name()).Str("connection_id", sender.ConnectionID).Msg("command panicked")
			g.ReportError(sender, cmd, domain.ErrInternal)
		}
	}()
	if err := cmd.execute(ctx, g, sender); err != nil {
		g.ReportError(sender, cmd, err)
	}
}

// ReportError unicasts err to the sender. Unknown games on reconnect become a reset.
func (g *GameService) ReportError(sender domain.Participant, cmd Command, err error) {
	name := ""
	if cmd != nil {
		name = cmd.Name()
	}
	kind := domain.KindOf(err)
	logger := log.With().Str("command", name).Str("connection_id", sender.ConnectionID).Str("participant_id", sender.ParticipantID).Logger()

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error().Err(err).Msg("command failed")
		de = domain.ErrInternal
	} else if kind == domain.KindInternal {
		logger.Error().Err(err).Msg("command failed")
	} else {
		logger.Debug().Err(err).Str("kind", string(kind)).Msg("command rejected")
	}

	if isReconnect(cmd) && kind == domain.KindNotFound {
		g.emitter.Send(sender.ConnectionID, domain.Event{Type: domain.EventReset, Payload: domain.MessagePayload{Message: "Game not found"}})
		return
	}
	g.emitter.Send(sender.ConnectionID, domain.Event{Type: domain.EventError, Payload: domain.MessagePayload{Message: de.Message}})
}

// Authenticate marks the connection as a manager and returns the quizzes it can host.
func (g *GameService) Authenticate(ctx context.Context, sender domain.Participant, password string) ([]domain.QuizSummary, error) {
	if g.auth == nil {
		return nil, domain.ErrNotAuthorized
	}
	if err := g.auth.Authenticate(ctx, password); err != nil {
		return nil, err
	}
	quizzes, err := g.quizzes.ListQuizzes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	g.mu.Lock()
	g.managers[sender.ConnectionID] = struct{}{}
	g.mu.Unlock()

	g.emitter.Send(sender.ConnectionID, domain.Event{Type: domain.EventQuizList, Payload: domain.QuizListPayload{Quizzes: quizzes}})
	return quizzes, nil
}

// CreateGame opens a lobby for quizID hosted by the sender.
func (g *GameService) CreateGame(ctx context.Context, sender domain.Participant, quizID string) (*Session, error) {
	if !g.isAuthenticated(sender.ConnectionID) {
		return nil, domain.ErrNotAuthorized
	}
	if err := g.claimConnection(ctx, sender.ConnectionID, ""); err != nil {
		return nil, err
	}
	quiz, err := g.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	s, err := g.registry.Create(ctx, quiz, sender)
	if err != nil {
		return nil, err
	}
	g.emitter.Send(sender.ConnectionID, domain.Event{Type: domain.EventGameCreated, Payload: domain.GameCreatedPayload{
		GameID:     s.ID(),
		InviteCode: s.InviteCode(),
	}})
	return s, nil
}

// JoinByInviteCode resolves an invite code to a lobby the sender may log into.
func (g *GameService) JoinByInviteCode(ctx context.Context, sender domain.Participant, code string) (string, error) {
	s, err := g.registry.ByInviteCode(code)
	if err != nil {
		return "", err
	}
	state, err := s.State(ctx)
	if err != nil {
		return "", err
	}
	if state != domain.StateLobby {
		return "", domain.ErrGameAlreadyStarted
	}
	g.emitter.Send(sender.ConnectionID, domain.Event{Type: domain.EventSuccessRoom, Payload: domain.SuccessRoomPayload{GameID: s.ID()}})
	return s.ID(), nil
}

// Login adds the sender to a lobby under username.
func (g *GameService) Login(ctx context.Context, sender domain.Participant, gameID, username string) (domain.PlayerView, error) {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return domain.PlayerView{}, err
	}
	if err := g.claimConnection(ctx, sender.ConnectionID, s.ID()); err != nil {
		return domain.PlayerView{}, err
	}
	view, err := s.Join(ctx, sender, username)
	if err != nil {
		return domain.PlayerView{}, err
	}
	g.registry.Bind(sender.ConnectionID, s.ID())
	return view, nil
}

func (g *GameService) KickPlayer(ctx context.Context, sender domain.Participant, gameID, playerID string) error {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return err
	}
	players, err := s.Players(ctx)
	if err != nil {
		return err
	}
	if err := s.Kick(ctx, sender, playerID); err != nil {
		return err
	}
	for _, p := range players {
		if p.ParticipantID == playerID && p.ConnectionID != "" {
			g.registry.Unbind(p.ConnectionID)
		}
	}
	return nil
}

func (g *GameService) StartGame(ctx context.Context, sender domain.Participant, gameID string) error {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return err
	}
	return s.Start(ctx, sender)
}

func (g *GameService) SelectAnswer(ctx context.Context, sender domain.Participant, gameID string, answerIndex int) error {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return err
	}
	return s.SelectAnswer(ctx, sender, answerIndex)
}

func (g *GameService) AbortQuiz(ctx context.Context, sender domain.Participant, gameID string) error {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return err
	}
	return s.AbortRound(ctx, sender)
}

func (g *GameService) NextQuestion(ctx context.Context, sender domain.Participant, gameID string) error {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return err
	}
	return s.NextRound(ctx, sender)
}

func (g *GameService) ShowLeaderboard(ctx context.Context, sender domain.Participant, gameID string) ([]domain.LeaderboardEntry, error) {
	s, err := g.registry.ByGameID(gameID)
	if err != nil {
		return nil, err
	}
	return s.ShowLeaderboard(ctx, sender)
}

// ReconnectPlayer rebinds the sender's player identity in gameID to its current connection.
func (g *GameService) ReconnectPlayer(ctx context.Context, sender domain.Participant, gameID string) error {
	s, err := g.registry.Resolve(ctx, gameID, sender.ParticipantID, domain.RolePlayer)
	if err != nil {
		return err
	}
	if err := g.claimConnection(ctx, sender.ConnectionID, s.ID()); err != nil {
		return err
	}
	superseded, err := s.ReconnectPlayer(ctx, sender)
	if err != nil {
		return err
	}
	g.rebind(s, sender.ConnectionID, superseded)
	return nil
}

// ReconnectManager rebinds the sender's manager identity in gameID to its current connection.
func (g *GameService) ReconnectManager(ctx context.Context, sender domain.Participant, gameID string) error {
	s, err := g.registry.Resolve(ctx, gameID, sender.ParticipantID, domain.RoleManager)
	if err != nil {
		return err
	}
	if err := g.claimConnection(ctx, sender.ConnectionID, s.ID()); err != nil {
		return err
	}
	superseded, err := s.ReconnectManager(ctx, sender)
	if err != nil {
		return err
	}
	g.rebind(s, sender.ConnectionID, superseded)
	g.mu.Lock()
	g.managers[sender.ConnectionID] = struct{}{}
	g.mu.Unlock()
	return nil
}

// Disconnect releases everything bound to the sender's connection.
func (g *GameService) Disconnect(ctx context.Context, sender domain.Participant) {
	g.mu.Lock()
	delete(g.managers, sender.ConnectionID)
	g.mu.Unlock()

	s, ok := g.registry.ByConnection(sender.ConnectionID)
	if !ok {
		return
	}
	g.registry.Unbind(sender.ConnectionID)
	teardown, err := s.Disconnect(ctx, sender.ConnectionID)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", sender.ConnectionID).Msg("disconnect from closed game")
		return
	}
	if teardown {
		g.registry.Remove(s.ID())
	}
}

// claimConnection makes sure connectionID can be bound to gameID. A connection
// follows one game at a time: a binding to another game that has ended is dropped,
// a binding to a game still running is refused.
func (g *GameService) claimConnection(ctx context.Context, connectionID, gameID string) error {
	bound, ok := g.registry.ByConnection(connectionID)
	if !ok || bound.ID() == gameID {
		return nil
	}
	state, err := bound.State(ctx)
	if err == nil && state != domain.StateEnded {
		return domain.ErrAlreadyInGame
	}
	g.registry.Unbind(connectionID)
	if err == nil {
		if _, err := bound.Disconnect(ctx, connectionID); err != nil {
			log.Debug().Err(err).Str("connection_id", connectionID).Msg("leave ended game")
		}
	}
	return nil
}

func (g *GameService) rebind(s *Session, connectionID, superseded string) {
	if superseded != "" {
		g.registry.Unbind(superseded)
	}
	g.registry.Bind(connectionID, s.ID())
}

func (g *GameService) isAuthenticated(connectionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.managers[connectionID]
	return ok
}
