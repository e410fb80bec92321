package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Question is a single multiple-choice prompt of a quiz.
type Question struct {
	Text        string   `json:"question" yaml:"question"`
	Answers     []string `json:"answers" yaml:"answers"`
	Image       string   `json:"image,omitempty" yaml:"image,omitempty"`
	Video       string   `json:"video,omitempty" yaml:"video,omitempty"`
	Audio       string   `json:"audio,omitempty" yaml:"audio,omitempty"`
	AnswerImage string   `json:"answerImage,omitempty" yaml:"answer-image,omitempty"`
	Solution    int      `json:"solution" yaml:"solution"`
	Cooldown    int      `json:"cooldown" yaml:"cooldown"` // seconds the prompt is shown before answers open
	Time        int      `json:"time" yaml:"time"`         // seconds the answer window stays open
}

// CooldownDuration returns the cooldown as a time.Duration.
func (q Question) CooldownDuration() time.Duration {
	return time.Duration(q.Cooldown) * time.Second
}

// Window returns the answer window as a time.Duration.
func (q Question) Window() time.Duration {
	return time.Duration(q.Time) * time.Second
}

// Quiz is an immutable quiz definition. ID is assigned by the content source.
type Quiz struct {
	ID        string     `json:"id" yaml:"id,omitempty"`
	Subject   string     `json:"subject" yaml:"subject"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate checks the structural rules every playable quiz must satisfy.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions", q.ID)
	}
	for i, question := range q.Questions {
		if n := len(question.Answers); n < 2 || n > 4 {
			return fmt.Errorf("quiz %q question %d: expected 2-4 answers, got %d", q.ID, i, n)
		}
		if question.Solution < 0 || question.Solution >= len(question.Answers) {
			return fmt.Errorf("quiz %q question %d: solution %d out of range", q.ID, i, question.Solution)
		}
		if question.Cooldown < 0 {
			return fmt.Errorf("quiz %q question %d: negative cooldown", q.ID, i)
		}
		if question.Time <= 0 {
			return fmt.Errorf("quiz %q question %d: time must be positive", q.ID, i)
		}
	}
	return nil
}

// QuizSummary is what a manager sees when picking a quiz.
type QuizSummary struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Questions int    `json:"questions"`
}

// Summary builds the listing view of a quiz.
func (q Quiz) Summary() QuizSummary {
	return QuizSummary{ID: q.ID, Subject: q.Subject, Questions: len(q.Questions)}
}

// SessionState is the phase a game session is in.
type SessionState string

const (
	StateLobby          SessionState = "LOBBY"
	StateCooldown       SessionState = "COOLDOWN"
	StateQuestionActive SessionState = "QUESTION_ACTIVE"
	StateReveal         SessionState = "REVEAL"
	StateEnded          SessionState = "ENDED"
)

// Role is the part a participant plays in a session.
type Role string

const (
	RoleManager Role = "manager"
	RolePlayer  Role = "player"
)

// Participant identifies who sent an event and over which connection.
// ParticipantID is supplied by the client and survives reconnects.
type Participant struct {
	ParticipantID string
	ConnectionID  string
}

// AnswerRecord is the outcome of one question for one player.
type AnswerRecord struct {
	QuestionIndex int   `json:"questionIndex"`
	ChosenIndex   *int  `json:"chosenIndex"`
	Correct       bool  `json:"correct"`
	LatencyMillis int64 `json:"latencyMillis"`
	Points        int   `json:"points"`
}

// Player is a participant answering questions.
type Player struct {
	ParticipantID string
	ConnectionID  string
	Username      string
	Connected     bool
	Excluded      bool
	TotalScore    int
	Answers       []AnswerRecord
	JoinOrder     int
	// ScoreReachedAt is when TotalScore last increased; used to break ties.
	ScoreReachedAt time.Time
}

// AnswerFor returns the record for a question index, if any.
func (p *Player) AnswerFor(questionIndex int) (AnswerRecord, bool) {
	for i := len(p.Answers) - 1; i >= 0; i-- {
		if p.Answers[i].QuestionIndex == questionIndex {
			return p.Answers[i], true
		}
	}
	return AnswerRecord{}, false
}

// View returns the public projection of a player.
func (p *Player) View() PlayerView {
	return PlayerView{
		ParticipantID: p.ParticipantID,
		Username:      p.Username,
		Connected:     p.Connected,
		Score:         p.TotalScore,
	}
}

// PlayerView is the public projection of a player sent over the wire.
type PlayerView struct {
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	Connected     bool   `json:"connected"`
	Score         int    `json:"score"`
}

// LeaderboardEntry is a ranked row of the scoreboard.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Username      string `json:"username"`
	Score         int    `json:"score"`
}

const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

// NormalizeUsername trims a username and checks its length.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < MinUsernameLength {
		return "", ErrUsernameTooShort
	}
	if n > MaxUsernameLength {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
