package domain

import "time"

// EventType names an outbound event on the wire.
type EventType string

const (
	EventQuizList         EventType = "quizList"
	EventGameCreated      EventType = "gameCreated"
	EventSuccessRoom      EventType = "successRoom"
	EventSuccessJoin      EventType = "successJoin"
	EventNewPlayer        EventType = "newPlayer"
	EventTotalPlayers     EventType = "totalPlayers"
	EventPlayerRemoved    EventType = "playerRemoved"
	EventPlayerKicked     EventType = "playerKicked"
	EventQuestionPrepared EventType = "questionPrepared"
	EventQuestionOpened   EventType = "questionOpened"
	EventAnswerAccepted   EventType = "answerAccepted"
	EventAnswersReceived  EventType = "answersReceived"
	EventRoundReveal      EventType = "roundReveal"
	EventLeaderboard      EventType = "leaderboard"
	EventGameEnded        EventType = "gameEnded"
	EventSnapshot         EventType = "snapshot"
	EventReset            EventType = "reset"
	EventError            EventType = "error"
)

// Event is a single outbound message: a type tag plus its payload.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

type QuizListPayload struct {
	Quizzes []QuizSummary `json:"quizzes"`
}

type GameCreatedPayload struct {
	GameID     string `json:"gameId"`
	InviteCode string `json:"inviteCode"`
}

type SuccessRoomPayload struct {
	GameID string `json:"gameId"`
}

type SuccessJoinPayload struct {
	GameID        string `json:"gameId"`
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
}

type NewPlayerPayload struct {
	Player PlayerView `json:"player"`
}

type TotalPlayersPayload struct {
	Count int `json:"count"`
}

type PlayerRefPayload struct {
	ParticipantID string `json:"participantId"`
}

// Progress is the 1-based position within the quiz.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// QuestionPreparedPayload announces a question during its cooldown; no answer options.
type QuestionPreparedPayload struct {
	Progress    Progress `json:"progress"`
	Question    string   `json:"question"`
	Image       string   `json:"image,omitempty"`
	Cooldown    int      `json:"cooldown"`
	AnswerCount int      `json:"answerCount"`
}

// QuestionOpenedPayload opens the answer window.
type QuestionOpenedPayload struct {
	Progress     Progress  `json:"progress"`
	Question     string    `json:"question"`
	Answers      []string  `json:"answers"`
	Image        string    `json:"image,omitempty"`
	Video        string    `json:"video,omitempty"`
	Audio        string    `json:"audio,omitempty"`
	Time         int       `json:"time"`
	Deadline     time.Time `json:"deadline"`
	TotalPlayers int       `json:"totalPlayers"`
}

type AnswerAcceptedPayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type AnswersReceivedPayload struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// PlayerResult is one player's outcome for a revealed round.
type PlayerResult struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	Answered      bool   `json:"answered"`
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	TotalScore    int    `json:"totalScore"`
	Rank          int    `json:"rank"`
	AheadOfMe     string `json:"aheadOfMe,omitempty"`
}

type RoundRevealPayload struct {
	Progress    Progress       `json:"progress"`
	Question    string         `json:"question"`
	Answers     []string       `json:"answers"`
	Solution    int            `json:"solution"`
	Tally       []int          `json:"tally"`
	Results     []PlayerResult `json:"results"`
	AnswerImage string         `json:"answerImage,omitempty"`
}

type LeaderboardPayload struct {
	Entries []LeaderboardEntry `json:"entries"`
}

type GameEndedPayload struct {
	Subject     string             `json:"subject"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

// QuestionView is the part of a question replayed in a snapshot.
type QuestionView struct {
	Index    int      `json:"index"`
	Question string   `json:"question"`
	Image    string   `json:"image,omitempty"`
	Answers  []string `json:"answers,omitempty"`
	Cooldown int      `json:"cooldown"`
	Time     int      `json:"time"`
}

// Snapshot is replayed to a participant after reconnecting.
type Snapshot struct {
	GameID      string             `json:"gameId"`
	InviteCode  string             `json:"inviteCode,omitempty"`
	Role        Role               `json:"role"`
	State       SessionState       `json:"state"`
	Subject     string             `json:"subject"`
	Progress    Progress           `json:"progress"`
	Question    *QuestionView      `json:"question,omitempty"`
	Deadline    *time.Time         `json:"deadline,omitempty"`
	Players     []PlayerView       `json:"players,omitempty"`
	Username    string             `json:"username,omitempty"`
	Score       int                `json:"score"`
	Answered    bool               `json:"answered"`
	Waiting     bool               `json:"waiting"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
}

// LifecycleType names a game lifecycle notification published to other systems.
type LifecycleType string

const (
	LifecycleCreated LifecycleType = "game.created"
	LifecycleEnded   LifecycleType = "game.ended"
	LifecycleRemoved LifecycleType = "game.removed"
)

// LifecycleEvent describes a change in a game's lifetime.
type LifecycleEvent struct {
	Type        LifecycleType      `json:"type"`
	GameID      string             `json:"gameId"`
	QuizID      string             `json:"quizId"`
	Subject     string             `json:"subject"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
	At          time.Time          `json:"at"`
}
