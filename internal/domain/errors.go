package domain

import "errors"

// Kind classifies a failure for reporting purposes.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindInvalidState  Kind = "invalid_state"
	KindValidation    Kind = "validation"
	KindInternal      Kind = "internal"
)

// Error is a user-facing failure. Messages are sent verbatim to the originating client.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// KindOf classifies err; anything that is not a *Error is internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

var (
	// ErrNotAuthorized is returned when a sender lacks the role an action needs.
	ErrNotAuthorized = &Error{Kind: KindAuthorization, Message: "not authorized"}
	// ErrInvalidPassword is returned by manager authentication.
	ErrInvalidPassword = &Error{Kind: KindAuthorization, Message: "invalid password"}

	// ErrSessionNotFound is returned when a game id or invite code is unknown.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Message: "game not found"}
	// ErrParticipantNotFound is returned when an identity is unknown to a session.
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Message: "participant not found in game"}
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = &Error{Kind: KindNotFound, Message: "quiz not found"}

	// ErrGameAlreadyStarted is returned when joining after the lobby closed.
	ErrGameAlreadyStarted = &Error{Kind: KindInvalidState, Message: "game already started"}
	// ErrEmptyRoster is returned when starting without players.
	ErrEmptyRoster = &Error{Kind: KindInvalidState, Message: "no players in the game"}
	// ErrInvalidState is returned when an action is not allowed in the current phase.
	ErrInvalidState = &Error{Kind: KindInvalidState, Message: "action not allowed right now"}
	// ErrAlreadyInGame is returned when a connection already takes part in another running game.
	ErrAlreadyInGame = &Error{Kind: KindInvalidState, Message: "already in another game"}
	// ErrWindowClosed is returned for answers that arrive after the deadline.
	ErrWindowClosed = &Error{Kind: KindInvalidState, Message: "answer window closed"}

	// ErrInvalidInviteCode is returned for malformed invite codes.
	ErrInvalidInviteCode = &Error{Kind: KindValidation, Message: "invalid invite code"}
	// ErrDuplicateUsername is returned when a username is taken (case-insensitive).
	ErrDuplicateUsername = &Error{Kind: KindValidation, Message: "username already taken"}
	// ErrUsernameTooShort is returned for usernames under the minimum length.
	ErrUsernameTooShort = &Error{Kind: KindValidation, Message: "username cannot be less than 3 characters"}
	// ErrUsernameTooLong is returned for usernames over the maximum length.
	ErrUsernameTooLong = &Error{Kind: KindValidation, Message: "username cannot exceed 20 characters"}
	// ErrAlreadyJoined is returned when the same identity logs in twice.
	ErrAlreadyJoined = &Error{Kind: KindValidation, Message: "player already connected"}
	// ErrInvalidAnswer is returned when an answer index is out of range.
	ErrInvalidAnswer = &Error{Kind: KindValidation, Message: "invalid answer"}
	// ErrInvalidPayload is returned when an inbound event cannot be decoded.
	ErrInvalidPayload = &Error{Kind: KindValidation, Message: "invalid payload"}

	// ErrInternal is the generic failure reported when handling panics or fails unexpectedly.
	ErrInternal = &Error{Kind: KindInternal, Message: "internal error"}
)
