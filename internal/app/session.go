package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

const mailboxSize = 64

// message is anything the session loop consumes: client requests or timer expiries.
type message interface{ isMessage() }

type request struct {
	fn    func() error
	reply chan error
}

type timerPhase int

const (
	phaseCooldown timerPhase = iota
	phaseAnswerWindow
)

// roundExpired is posted by a timer. seq identifies the arming; anything else is stale.
type roundExpired struct {
	seq      uint64
	phase    timerPhase
	question int
}

func (request) isMessage()      {}
func (roundExpired) isMessage() {}

// sessionHooks lets the owner of a session react to it ending.
type sessionHooks interface {
	sessionEnded(s *Session, final []domain.LeaderboardEntry)
}

type sessionDeps struct {
	clock   clockwork.Clock
	scorer  Scorer
	emitter Emitter
	metrics Metrics
	hooks   sessionHooks
	baseURL string
}

// Session is one running game. All state below the mailbox is owned by the
// run loop; exported methods enqueue work and wait for its result.
type Session struct {
	id         string
	inviteCode string
	quiz       domain.Quiz
	clock      clockwork.Clock
	scorer     Scorer
	emitter    Emitter
	metrics    Metrics
	hooks      sessionHooks
	baseURL    string
	logger     zerolog.Logger

	mailbox   chan message
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	state    domain.SessionState
	started  bool
	manager  domain.Participant
	players  []*domain.Player
	joined   int
	current  int
	deadline time.Time
	tally    []int
	timer    clockwork.Timer
	timerSeq uint64
}

func newSession(id, inviteCode string, quiz domain.Quiz, manager domain.Participant, deps sessionDeps) *Session {
	if deps.clock == nil {
		deps.clock = clockwork.NewRealClock()
	}
	if deps.scorer == nil {
		deps.scorer = DefaultScorer()
	}
	if deps.emitter == nil {
		deps.emitter = discardEmitter{}
	}
	if deps.metrics == nil {
		deps.metrics = noopMetrics{}
	}
	s := &Session{
		id:         id,
		inviteCode: inviteCode,
		quiz:       quiz,
		clock:      deps.clock,
		scorer:     deps.scorer,
		emitter:    deps.emitter,
		metrics:    deps.metrics,
		hooks:      deps.hooks,
		baseURL:    deps.baseURL,
		logger:     log.With().Str("game_id", id).Str("invite_code", inviteCode).Logger(),
		mailbox:    make(chan message, mailboxSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		state:      domain.StateLobby,
		manager:    manager,
		current:    -1,
	}
	s.emitter.Subscribe(id, manager.ConnectionID)
	go s.run()
	return s
}

// ID returns the game id used for room addressing.
func (s *Session) ID() string { return s.id }

// InviteCode returns the short code players type to join.
func (s *Session) InviteCode() string { return s.inviteCode }

// Quiz returns the immutable quiz being played.
func (s *Session) Quiz() domain.Quiz { return s.quiz }

// Done is closed once the session loop has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the session loop and cancels any pending timer. Safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.emitter.CloseRoom(s.id)
	})
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			s.abortCooldown()
			return
		case msg := <-s.mailbox:
			switch m := msg.(type) {
			case request:
				s.execute(m)
			case roundExpired:
				s.expire(m)
			}
		}
	}
}

func (s *Session) execute(cmd request) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("session command panicked")
			cmd.reply <- domain.ErrInternal
		}
	}()
	cmd.reply <- cmd.fn()
}

// do runs fn on the session loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.mailbox <- request{fn: fn, reply: reply}:
	case <-s.quit:
		return domain.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return domain.ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(msg message) {
	select {
	case s.mailbox <- msg:
	case <-s.quit:
	}
}

// Join adds a player while the session is in the lobby.
func (s *Session) Join(ctx context.Context, p domain.Participant, username string) (domain.PlayerView, error) {
	var view domain.PlayerView
	err := s.do(ctx, func() error {
		v, err := s.join(p, username)
		view = v
		return err
	})
	return view, err
}

// Kick removes a player in the lobby, or excludes them from the rest of a started game.
func (s *Session) Kick(ctx context.Context, sender domain.Participant, participantID string) error {
	return s.do(ctx, func() error { return s.kick(sender, participantID) })
}

// Start moves the session from the lobby into the first question's cooldown.
func (s *Session) Start(ctx context.Context, sender domain.Participant) error {
	return s.do(ctx, func() error { return s.start(sender) })
}

// SelectAnswer records a player's answer for the active question.
func (s *Session) SelectAnswer(ctx context.Context, sender domain.Participant, answerIndex int) error {
	return s.do(ctx, func() error { return s.selectAnswer(sender, answerIndex) })
}

// NextRound advances to the next question, or ends the game after the last one.
func (s *Session) NextRound(ctx context.Context, sender domain.Participant) error {
	return s.do(ctx, func() error { return s.nextRound(sender) })
}

// ShowLeaderboard broadcasts the current ranking without changing state.
func (s *Session) ShowLeaderboard(ctx context.Context, sender domain.Participant) ([]domain.LeaderboardEntry, error) {
	var board []domain.LeaderboardEntry
	err := s.do(ctx, func() error {
		b, err := s.showLeaderboard(sender)
		board = b
		return err
	})
	return board, err
}

// AbortRound closes the current round immediately and reveals it as scored so far.
func (s *Session) AbortRound(ctx context.Context, sender domain.Participant) error {
	return s.do(ctx, func() error { return s.abortRound(sender) })
}

// ReconnectManager rebinds the manager identity to a new connection.
// It returns the connection that was superseded, if any.
func (s *Session) ReconnectManager(ctx context.Context, p domain.Participant) (string, error) {
	var superseded string
	err := s.do(ctx, func() error {
		old, err := s.reconnectManager(p)
		superseded = old
		return err
	})
	return superseded, err
}

// ReconnectPlayer rebinds a player identity to a new connection.
// It returns the connection that was superseded, if any.
func (s *Session) ReconnectPlayer(ctx context.Context, p domain.Participant) (string, error) {
	var superseded string
	err := s.do(ctx, func() error {
		old, err := s.reconnectPlayer(p)
		superseded = old
		return err
	})
	return superseded, err
}

// Disconnect handles a dropped connection. It reports whether the session
// must be torn down because its manager left before the game started.
func (s *Session) Disconnect(ctx context.Context, connectionID string) (bool, error) {
	var teardown bool
	err := s.do(ctx, func() error {
		teardown = s.disconnect(connectionID)
		return nil
	})
	return teardown, err
}

// Identify reports whether participantID belongs to this session in the given role.
func (s *Session) Identify(ctx context.Context, participantID string, role domain.Role) (bool, error) {
	var ok bool
	err := s.do(ctx, func() error {
		switch role {
		case domain.RoleManager:
			ok = participantID == s.manager.ParticipantID
		case domain.RolePlayer:
			p := s.playerByID(participantID)
			ok = p != nil && !p.Excluded
		}
		return nil
	})
	return ok, err
}

// Snapshot returns the state a participant would see after reconnecting.
func (s *Session) Snapshot(ctx context.Context, participantID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.do(ctx, func() error {
		if participantID == s.manager.ParticipantID {
			snap = s.snapshot(domain.RoleManager, nil)
			return nil
		}
		p := s.playerByID(participantID)
		if p == nil || p.Excluded {
			return domain.ErrParticipantNotFound
		}
		snap = s.snapshot(domain.RolePlayer, p)
		return nil
	})
	return snap, err
}

// State returns the current phase.
func (s *Session) State(ctx context.Context) (domain.SessionState, error) {
	var state domain.SessionState
	err := s.do(ctx, func() error {
		state = s.state
		return nil
	})
	return state, err
}

// Players returns copies of the roster in join order.
func (s *Session) Players(ctx context.Context) ([]domain.Player, error) {
	var out []domain.Player
	err := s.do(ctx, func() error {
		out = make([]domain.Player, 0, len(s.players))
		for _, p := range s.players {
			cp := *p
			cp.Answers = append([]domain.AnswerRecord(nil), p.Answers...)
			out = append(out, cp)
		}
		return nil
	})
	return out, err
}

func (s *Session) join(p domain.Participant, username string) (domain.PlayerView, error) {
	if s.state != domain.StateLobby {
		return domain.PlayerView{}, domain.ErrGameAlreadyStarted
	}
	if p.ParticipantID == "" || p.ParticipantID == s.manager.ParticipantID {
		return domain.PlayerView{}, domain.ErrNotAuthorized
	}
	name, err := domain.NormalizeUsername(username)
	if err != nil {
		return domain.PlayerView{}, err
	}
	for _, existing := range s.players {
		if existing.ParticipantID == p.ParticipantID {
			return domain.PlayerView{}, domain.ErrAlreadyJoined
		}
		if strings.EqualFold(existing.Username, name) {
			return domain.PlayerView{}, domain.ErrDuplicateUsername
		}
	}

	s.joined++
	player := &domain.Player{
		ParticipantID: p.ParticipantID,
		ConnectionID:  p.ConnectionID,
		Username:      name,
		Connected:     true,
		JoinOrder:     s.joined,
	}
	s.players = append(s.players, player)
	s.metrics.PlayerJoined()

	s.emitter.Subscribe(s.id, p.ConnectionID)
	s.broadcastTotalPlayers()
	s.sendManager(domain.Event{Type: domain.EventNewPlayer, Payload: domain.NewPlayerPayload{Player: player.View()}})
	s.emitter.Send(p.ConnectionID, domain.Event{Type: domain.EventSuccessJoin, Payload: domain.SuccessJoinPayload{
		GameID:        s.id,
		ParticipantID: p.ParticipantID,
		Username:      name,
	}})
	s.logger.Info().Str("participant_id", p.ParticipantID).Str("username", name).Msg("player joined")
	return player.View(), nil
}

func (s *Session) kick(sender domain.Participant, participantID string) error {
	if !s.isManager(sender) {
		return domain.ErrNotAuthorized
	}
	idx := -1
	for i, p := range s.players {
		if p.ParticipantID == participantID && !p.Excluded {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ErrParticipantNotFound
	}

	player := s.players[idx]
	conn := player.ConnectionID
	if s.state == domain.StateLobby {
		s.players = append(s.players[:idx], s.players[idx+1:]...)
	} else {
		player.Excluded = true
		player.Connected = false
		player.ConnectionID = ""
		// Excluded players' votes do not count towards the open round's tally.
		if record, ok := player.AnswerFor(s.current); ok && record.ChosenIndex != nil && s.state == domain.StateQuestionActive {
			s.tally[*record.ChosenIndex]--
		}
	}
	if conn != "" {
		s.emitter.Send(conn, domain.Event{Type: domain.EventReset, Payload: domain.MessagePayload{Message: "You have been kicked by the manager"}})
		s.emitter.Unsubscribe(s.id, conn)
	}
	s.sendManager(domain.Event{Type: domain.EventPlayerKicked, Payload: domain.PlayerRefPayload{ParticipantID: participantID}})
	s.broadcastTotalPlayers()
	s.logger.Info().Str("participant_id", participantID).Msg("player kicked")

	if s.state == domain.StateQuestionActive {
		s.sendManager(domain.Event{Type: domain.EventAnswersReceived, Payload: domain.AnswersReceivedPayload{
			Count: s.answeredCount(),
			Total: s.activeCount(),
		}})
		if s.allConnectedAnswered() {
			s.reveal()
		}
	}
	return nil
}

func (s *Session) start(sender domain.Participant) error {
	if !s.isManager(sender) {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateLobby {
		return domain.ErrInvalidState
	}
	if len(s.players) == 0 {
		return domain.ErrEmptyRoster
	}
	s.started = true
	s.current = 0
	s.logger.Info().Int("players", len(s.players)).Msg("game started")
	s.beginCooldown()
	return nil
}

func (s *Session) beginCooldown() {
	q := s.question()
	s.state = domain.StateCooldown
	s.deadline = time.Time{}
	s.tally = make([]int, len(q.Answers))
	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventQuestionPrepared, Payload: domain.QuestionPreparedPayload{
		Progress:    s.progress(),
		Question:    q.Text,
		Image:       resolveMedia(s.baseURL, q.Image),
		Cooldown:    q.Cooldown,
		AnswerCount: len(q.Answers),
	}})
	s.arm(phaseCooldown, q.CooldownDuration())
}

func (s *Session) openQuestion() {
	q := s.question()
	s.state = domain.StateQuestionActive
	s.deadline = s.clock.Now().Add(q.Window())
	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventQuestionOpened, Payload: domain.QuestionOpenedPayload{
		Progress:     s.progress(),
		Question:     q.Text,
		Answers:      q.Answers,
		Image:        resolveMedia(s.baseURL, q.Image),
		Video:        resolveMedia(s.baseURL, q.Video),
		Audio:        resolveMedia(s.baseURL, q.Audio),
		Time:         q.Time,
		Deadline:     s.deadline,
		TotalPlayers: s.connectedCount(),
	}})
	s.arm(phaseAnswerWindow, q.Window())
}

func (s *Session) selectAnswer(sender domain.Participant, answerIndex int) error {
	player := s.playerByConnection(sender)
	if player == nil {
		return domain.ErrParticipantNotFound
	}
	switch s.state {
	case domain.StateQuestionActive:
	case domain.StateReveal:
		return domain.ErrWindowClosed
	default:
		return domain.ErrInvalidState
	}
	if _, answered := player.AnswerFor(s.current); answered {
		return nil
	}

	now := s.clock.Now()
	if now.After(s.deadline) {
		s.metrics.AnswerRejected()
		return domain.ErrWindowClosed
	}
	q := s.question()
	if answerIndex < 0 || answerIndex >= len(q.Answers) {
		return domain.ErrInvalidAnswer
	}

	opened := s.deadline.Add(-q.Window())
	latency := now.Sub(opened).Milliseconds()
	correct := answerIndex == q.Solution
	points := s.scorer.Score(correct, latency, q.Time)
	chosen := answerIndex
	player.Answers = append(player.Answers, domain.AnswerRecord{
		QuestionIndex: s.current,
		ChosenIndex:   &chosen,
		Correct:       correct,
		LatencyMillis: latency,
		Points:        points,
	})
	if points > 0 {
		player.TotalScore += points
		player.ScoreReachedAt = now
	}
	s.tally[answerIndex]++
	s.metrics.AnswerRecorded(correct)

	s.emitter.Send(player.ConnectionID, domain.Event{Type: domain.EventAnswerAccepted, Payload: domain.AnswerAcceptedPayload{QuestionIndex: s.current}})
	s.sendManager(domain.Event{Type: domain.EventAnswersReceived, Payload: domain.AnswersReceivedPayload{
		Count: s.answeredCount(),
		Total: s.activeCount(),
	}})

	if s.allConnectedAnswered() {
		s.reveal()
	}
	return nil
}

func (s *Session) reveal() {
	s.stopTimer()
	q := s.question()
	s.state = domain.StateReveal
	s.deadline = time.Time{}

	for _, p := range s.players {
		if p.Excluded {
			continue
		}
		if _, ok := p.AnswerFor(s.current); !ok {
			p.Answers = append(p.Answers, domain.AnswerRecord{QuestionIndex: s.current})
		}
	}

	board := s.leaderboard()
	results := make([]domain.PlayerResult, 0, len(board))
	for i, entry := range board {
		p := s.playerByID(entry.ParticipantID)
		record, _ := p.AnswerFor(s.current)
		result := domain.PlayerResult{
			ParticipantID: p.ParticipantID,
			Username:      p.Username,
			Answered:      record.ChosenIndex != nil,
			Correct:       record.Correct,
			Points:        record.Points,
			TotalScore:    p.TotalScore,
			Rank:          entry.Rank,
		}
		if i > 0 {
			result.AheadOfMe = board[i-1].Username
		}
		results = append(results, result)
	}

	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventRoundReveal, Payload: domain.RoundRevealPayload{
		Progress:    s.progress(),
		Question:    q.Text,
		Answers:     q.Answers,
		Solution:    q.Solution,
		Tally:       append([]int(nil), s.tally...),
		Results:     results,
		AnswerImage: resolveMedia(s.baseURL, q.AnswerImage),
	}})
	s.metrics.RoundRevealed()
	s.logger.Debug().Int("question", s.current).Msg("round revealed")
}

func (s *Session) nextRound(sender domain.Participant) error {
	if !s.isManager(sender) {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateReveal {
		return domain.ErrInvalidState
	}
	if s.current+1 < len(s.quiz.Questions) {
		s.current++
		s.beginCooldown()
		return nil
	}
	s.end()
	return nil
}

func (s *Session) end() {
	s.stopTimer()
	s.state = domain.StateEnded
	board := s.leaderboard()
	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventGameEnded, Payload: domain.GameEndedPayload{
		Subject:     s.quiz.Subject,
		Leaderboard: board,
	}})
	s.logger.Info().Msg("game ended")
	if s.hooks != nil {
		s.hooks.sessionEnded(s, board)
	}
}

func (s *Session) showLeaderboard(sender domain.Participant) ([]domain.LeaderboardEntry, error) {
	if !s.isManager(sender) {
		return nil, domain.ErrNotAuthorized
	}
	if s.state != domain.StateReveal {
		return nil, domain.ErrInvalidState
	}
	board := s.leaderboard()
	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventLeaderboard, Payload: domain.LeaderboardPayload{Entries: board}})
	return board, nil
}

func (s *Session) abortRound(sender domain.Participant) error {
	if !s.isManager(sender) {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateCooldown && s.state != domain.StateQuestionActive {
		return domain.ErrInvalidState
	}
	s.logger.Info().Int("question", s.current).Str("state", string(s.state)).Msg("round aborted")
	s.reveal()
	return nil
}

func (s *Session) reconnectManager(p domain.Participant) (string, error) {
	if p.ParticipantID == "" || p.ParticipantID != s.manager.ParticipantID {
		return "", domain.ErrParticipantNotFound
	}
	old := s.manager.ConnectionID
	if old != "" && old != p.ConnectionID {
		s.emitter.Send(old, domain.Event{Type: domain.EventReset, Payload: domain.MessagePayload{Message: "Connected from another window"}})
		s.emitter.Unsubscribe(s.id, old)
	} else {
		old = ""
	}
	s.manager.ConnectionID = p.ConnectionID
	s.emitter.Subscribe(s.id, p.ConnectionID)
	s.emitter.Send(p.ConnectionID, domain.Event{Type: domain.EventSnapshot, Payload: s.snapshot(domain.RoleManager, nil)})
	s.logger.Info().Msg("manager reconnected")
	return old, nil
}

func (s *Session) reconnectPlayer(p domain.Participant) (string, error) {
	player := s.playerByID(p.ParticipantID)
	if p.ParticipantID == "" || player == nil || player.Excluded {
		return "", domain.ErrParticipantNotFound
	}
	old := player.ConnectionID
	if old != "" && old != p.ConnectionID {
		s.emitter.Send(old, domain.Event{Type: domain.EventReset, Payload: domain.MessagePayload{Message: "Connected from another window"}})
		s.emitter.Unsubscribe(s.id, old)
	} else {
		old = ""
	}
	player.ConnectionID = p.ConnectionID
	player.Connected = true
	s.emitter.Subscribe(s.id, p.ConnectionID)
	s.emitter.Send(p.ConnectionID, domain.Event{Type: domain.EventSnapshot, Payload: s.snapshot(domain.RolePlayer, player)})
	s.broadcastTotalPlayers()
	s.logger.Info().Str("participant_id", p.ParticipantID).Msg("player reconnected")
	return old, nil
}

func (s *Session) disconnect(connectionID string) bool {
	if connectionID == "" {
		return false
	}
	if s.manager.ConnectionID == connectionID {
		s.manager.ConnectionID = ""
		s.emitter.Unsubscribe(s.id, connectionID)
		if !s.started {
			s.abortCooldown()
			s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventReset, Payload: domain.MessagePayload{Message: "Manager disconnected"}})
			s.logger.Info().Msg("manager left the lobby, tearing down")
			return true
		}
		s.logger.Info().Msg("manager disconnected")
		return false
	}
	for i, p := range s.players {
		if p.ConnectionID != connectionID {
			continue
		}
		s.emitter.Unsubscribe(s.id, connectionID)
		if s.state == domain.StateLobby {
			s.players = append(s.players[:i], s.players[i+1:]...)
			s.sendManager(domain.Event{Type: domain.EventPlayerRemoved, Payload: domain.PlayerRefPayload{ParticipantID: p.ParticipantID}})
		} else {
			p.Connected = false
			p.ConnectionID = ""
		}
		s.broadcastTotalPlayers()
		return false
	}
	return false
}

func (s *Session) expire(msg roundExpired) {
	if msg.seq != s.timerSeq || msg.question != s.current {
		s.logger.Debug().Uint64("seq", msg.seq).Int("question", msg.question).Msg("discarding stale timer")
		return
	}
	s.timer = nil
	switch {
	case msg.phase == phaseCooldown && s.state == domain.StateCooldown:
		s.openQuestion()
	case msg.phase == phaseAnswerWindow && s.state == domain.StateQuestionActive:
		s.reveal()
	}
}

func (s *Session) arm(phase timerPhase, d time.Duration) {
	s.stopTimer()
	s.timerSeq++
	msg := roundExpired{seq: s.timerSeq, phase: phase, question: s.current}
	s.timer = s.clock.AfterFunc(d, func() { s.post(msg) })
}

// stopTimer cancels the pending timer; bumping seq turns an in-flight expiry into a no-op.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

// abortCooldown cancels whatever timer is pending before the session goes away.
func (s *Session) abortCooldown() {
	if s.timer != nil {
		s.logger.Debug().Str("state", string(s.state)).Msg("cancelling pending timer")
	}
	s.stopTimer()
}

func (s *Session) snapshot(role domain.Role, player *domain.Player) domain.Snapshot {
	snap := domain.Snapshot{
		GameID:   s.id,
		Role:     role,
		State:    s.state,
		Subject:  s.quiz.Subject,
		Progress: s.progress(),
	}
	if role == domain.RoleManager {
		if s.state != domain.StateEnded {
			snap.InviteCode = s.inviteCode
		}
		snap.Players = make([]domain.PlayerView, 0, len(s.players))
		for _, p := range s.players {
			if !p.Excluded {
				snap.Players = append(snap.Players, p.View())
			}
		}
	}
	answered := false
	if player != nil {
		snap.Username = player.Username
		snap.Score = player.TotalScore
		record, ok := player.AnswerFor(s.current)
		answered = ok && record.ChosenIndex != nil
		snap.Answered = answered
	}

	switch s.state {
	case domain.StateCooldown, domain.StateQuestionActive:
		q := s.question()
		view := &domain.QuestionView{
			Index:    s.current,
			Question: q.Text,
			Image:    resolveMedia(s.baseURL, q.Image),
			Cooldown: q.Cooldown,
			Time:     q.Time,
		}
		if s.state == domain.StateQuestionActive {
			view.Answers = q.Answers
			deadline := s.deadline
			snap.Deadline = &deadline
		}
		snap.Question = view
		snap.Waiting = player != nil && (s.state == domain.StateCooldown || answered)
	case domain.StateReveal, domain.StateEnded:
		snap.Leaderboard = s.leaderboard()
		snap.Waiting = player != nil
	default:
		snap.Waiting = player != nil
	}
	return snap
}

// leaderboard ranks non-excluded players: score desc, then who reached the
// score first, then join order.
func (s *Session) leaderboard() []domain.LeaderboardEntry {
	ranked := make([]*domain.Player, 0, len(s.players))
	for _, p := range s.players {
		if !p.Excluded {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.ScoreReachedAt.Equal(b.ScoreReachedAt) {
			return a.ScoreReachedAt.Before(b.ScoreReachedAt)
		}
		return a.JoinOrder < b.JoinOrder
	})
	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, p := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ParticipantID,
			Username:      p.Username,
			Score:         p.TotalScore,
		}
	}
	return entries
}

func (s *Session) question() domain.Question {
	return s.quiz.Questions[s.current]
}

func (s *Session) progress() domain.Progress {
	return domain.Progress{Current: s.current + 1, Total: len(s.quiz.Questions)}
}

func (s *Session) isManager(p domain.Participant) bool {
	return p.ConnectionID != "" &&
		p.ConnectionID == s.manager.ConnectionID &&
		p.ParticipantID == s.manager.ParticipantID
}

func (s *Session) playerByID(participantID string) *domain.Player {
	for _, p := range s.players {
		if p.ParticipantID == participantID {
			return p
		}
	}
	return nil
}

func (s *Session) playerByConnection(sender domain.Participant) *domain.Player {
	if sender.ConnectionID == "" {
		return nil
	}
	for _, p := range s.players {
		if p.ConnectionID == sender.ConnectionID && p.ParticipantID == sender.ParticipantID && !p.Excluded {
			return p
		}
	}
	return nil
}

func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.Connected && !p.Excluded {
			n++
		}
	}
	return n
}

func (s *Session) activeCount() int {
	n := 0
	for _, p := range s.players {
		if !p.Excluded {
			n++
		}
	}
	return n
}

func (s *Session) answeredCount() int {
	n := 0
	for _, p := range s.players {
		if p.Excluded {
			continue
		}
		if _, ok := p.AnswerFor(s.current); ok {
			n++
		}
	}
	return n
}

func (s *Session) allConnectedAnswered() bool {
	connected := 0
	for _, p := range s.players {
		if !p.Connected || p.Excluded {
			continue
		}
		connected++
		if _, ok := p.AnswerFor(s.current); !ok {
			return false
		}
	}
	return connected > 0
}

func (s *Session) broadcastTotalPlayers() {
	s.emitter.Broadcast(s.id, domain.Event{Type: domain.EventTotalPlayers, Payload: domain.TotalPlayersPayload{Count: s.connectedCount()}})
}

func (s *Session) sendManager(evt domain.Event) {
	if s.manager.ConnectionID != "" {
		s.emitter.Send(s.manager.ConnectionID, evt)
	}
}

// resolveMedia prefixes relative media paths with the public base URL.
func resolveMedia(baseURL, path string) string {
	if path == "" || baseURL == "" {
		return path
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
