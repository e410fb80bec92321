package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"live-quiz-service/internal/domain"
)

// Inbound event names.
const (
	CmdManagerAuth      = "manager:auth"
	CmdGameCreate       = "game:create"
	CmdPlayerJoin       = "player:join"
	CmdPlayerLogin      = "player:login"
	CmdKickPlayer       = "manager:kickPlayer"
	CmdStartGame        = "manager:startGame"
	CmdSelectedAnswer   = "player:selectedAnswer"
	CmdAbortQuiz        = "manager:abortQuiz"
	CmdNextQuestion     = "manager:nextQuestion"
	CmdShowLeaderboard  = "manager:showLeaderboard"
	CmdPlayerReconnect  = "player:reconnect"
	CmdManagerReconnect = "manager:reconnect"
)

// Command is one inbound event. The set is closed: only types in this file implement it.
type Command interface {
	Name() string
	execute(ctx context.Context, g *GameService, sender domain.Participant) error
}

type AuthCommand struct {
	Password string `json:"password" validate:"required,max=256"`
}

type CreateGameCommand struct {
	QuizID string `json:"quizId" validate:"required,max=128"`
}

type JoinCommand struct {
	InviteCode string `json:"inviteCode" validate:"required"`
}

type LoginCommand struct {
	GameID   string `json:"gameId" validate:"required,uuid"`
	Username string `json:"username" validate:"required"`
}

type KickPlayerCommand struct {
	GameID   string `json:"gameId" validate:"required,uuid"`
	PlayerID string `json:"playerId" validate:"required"`
}

type StartGameCommand struct {
	GameID string `json:"gameId" validate:"required,uuid"`
}

type SelectAnswerCommand struct {
	GameID    string `json:"gameId" validate:"required,uuid"`
	AnswerKey *int   `json:"answerKey" validate:"required,min=0,max=3"`
}

type AbortQuizCommand struct {
	GameID string `json:"gameId" validate:"required,uuid"`
}

type NextQuestionCommand struct {
	GameID string `json:"gameId" validate:"required,uuid"`
}

type ShowLeaderboardCommand struct {
	GameID string `json:"gameId" validate:"required,uuid"`
}

type PlayerReconnectCommand struct {
	GameID string `json:"gameId" validate:"required"`
}

type ManagerReconnectCommand struct {
	GameID string `json:"gameId" validate:"required"`
}

func (*AuthCommand) Name() string { return CmdManagerAuth }
func (*CreateGameCommand) Name() string { return CmdGameCreate }
func (*JoinCommand) Name() string { return CmdPlayerJoin }
func (*LoginCommand) Name() string { return CmdPlayerLogin }
func (*KickPlayerCommand) Name() string { return CmdKickPlayer }
func (*StartGameCommand) Name() string { return CmdStartGame }
func (*SelectAnswerCommand) Name() string { return CmdSelectedAnswer }
func (*AbortQuizCommand) Name() string { return CmdAbortQuiz }
func (*NextQuestionCommand) Name() string { return CmdNextQuestion }
func (*ShowLeaderboardCommand) Name() string { return CmdShowLeaderboard }
func (*PlayerReconnectCommand) Name() string { return CmdPlayerReconnect }
func (*ManagerReconnectCommand) Name() string { return CmdManagerReconnect }

func (c *AuthCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	_, err := g.Authenticate(ctx, sender, c.Password)
	return err
}

func (c *CreateGameCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	_, err := g.CreateGame(ctx, sender, c.QuizID)
	return err
}

func (c *JoinCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	_, err := g.JoinByInviteCode(ctx, sender, c.InviteCode)
	return err
}

func (c *LoginCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	_, err := g.Login(ctx, sender, c.GameID, c.Username)
	return err
}

func (c *KickPlayerCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.KickPlayer(ctx, sender, c.GameID, c.PlayerID)
}

func (c *StartGameCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.StartGame(ctx, sender, c.GameID)
}

func (c *SelectAnswerCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.SelectAnswer(ctx, sender, c.GameID, *c.AnswerKey)
}

func (c *AbortQuizCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.AbortQuiz(ctx, sender, c.GameID)
}

func (c *NextQuestionCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.NextQuestion(ctx, sender, c.GameID)
}

func (c *ShowLeaderboardCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	_, err := g.ShowLeaderboard(ctx, sender, c.GameID)
	return err
}

func (c *PlayerReconnectCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.ReconnectPlayer(ctx, sender, c.GameID)
}

func (c *ManagerReconnectCommand) execute(ctx context.Context, g *GameService, sender domain.Participant) error {
	return g.ReconnectManager(ctx, sender, c.GameID)
}

func isReconnect(cmd Command) bool {
	switch cmd.(type) {
	case *PlayerReconnectCommand, *ManagerReconnectCommand:
		return true
	}
	return false
}

var commandFactories = map[string]func() Command{
	CmdManagerAuth:      func() Command { return &AuthCommand{} },
	CmdGameCreate:       func() Command { return &CreateGameCommand{} },
	CmdPlayerJoin:       func() Command { return &JoinCommand{} },
	CmdPlayerLogin:      func() Command { return &LoginCommand{} },
	CmdKickPlayer:       func() Command { return &KickPlayerCommand{} },
	CmdStartGame:        func() Command { return &StartGameCommand{} },
	CmdSelectedAnswer:   func() Command { return &SelectAnswerCommand{} },
	CmdAbortQuiz:        func() Command { return &AbortQuizCommand{} },
	CmdNextQuestion:     func() Command { return &NextQuestionCommand{} },
	CmdShowLeaderboard:  func() Command { return &ShowLeaderboardCommand{} },
	CmdPlayerReconnect:  func() Command { return &PlayerReconnectCommand{} },
	CmdManagerReconnect: func() Command { return &ManagerReconnectCommand{} },
}

var validate = validator.New()

// ErrUnknownCommand is returned by DecodeCommand for names outside the command set.
var ErrUnknownCommand = &domain.Error{Kind: domain.KindValidation, Message: "unsupported message type"}

// DecodeCommand builds the command named name from its JSON payload and validates it.
func DecodeCommand(name string, payload json.RawMessage) (Command, error) {
	factory, ok := commandFactories[name]
	if !ok {
		return nil, ErrUnknownCommand
	}
	cmd := factory()
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, cmd); err != nil {
			return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(cmd); err != nil {
		return cmd, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return cmd, nil
}
