package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// recordingEmitter keeps every outbound event per connection.
type recordingEmitter struct {
	mu     sync.Mutex
	rooms  map[string]map[string]struct{}
	inbox  map[string][]domain.Event
	closed map[string]bool
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{
		rooms:  make(map[string]map[string]struct{}),
		inbox:  make(map[string][]domain.Event),
		closed: make(map[string]bool),
	}
}

func (e *recordingEmitter) Subscribe(gameID, connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rooms[gameID] == nil {
		e.rooms[gameID] = make(map[string]struct{})
	}
	e.rooms[gameID][connID] = struct{}{}
}

func (e *recordingEmitter) Unsubscribe(gameID, connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms[gameID], connID)
}

func (e *recordingEmitter) Broadcast(gameID string, evt domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for conn := range e.rooms[gameID] {
		e.inbox[conn] = append(e.inbox[conn], evt)
	}
}

func (e *recordingEmitter) Send(connID string, evt domain.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inbox[connID] = append(e.inbox[connID], evt)
}

func (e *recordingEmitter) CloseRoom(gameID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms, gameID)
	e.closed[gameID] = true
}

func (e *recordingEmitter) events(connID string, typ domain.EventType) []domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.Event
	for _, evt := range e.inbox[connID] {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

func (e *recordingEmitter) last(t *testing.T, connID string, typ domain.EventType) domain.Event {
	t.Helper()
	evts := e.events(connID, typ)
	if len(evts) == 0 {
		t.Fatalf("no %s event for %s", typ, connID)
	}
	return evts[len(evts)-1]
}

func (e *recordingEmitter) roomClosed(gameID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed[gameID]
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "general",
		Subject: "General knowledge",
		Questions: []domain.Question{
			{Text: "Which letter?", Answers: []string{"A", "B", "C", "D"}, Solution: 1, Cooldown: 2, Time: 10},
		},
	}
}

func twoQuestionQuiz() domain.Quiz {
	q := sampleQuiz()
	q.Questions = append(q.Questions, domain.Question{
		Text: "Which colour?", Answers: []string{"Red", "Blue"}, Solution: 0, Cooldown: 1, Time: 5,
	})
	return q
}

type fixture struct {
	clock    *clockwork.FakeClock
	emitter  *recordingEmitter
	registry *app.Registry
	manager  domain.Participant
}

func newFixture(t *testing.T, opts ...app.RegistryOption) *fixture {
	t.Helper()
	f := &fixture{
		clock:   clockwork.NewFakeClock(),
		emitter: newRecordingEmitter(),
		manager: domain.Participant{ParticipantID: "manager-1", ConnectionID: "conn-manager"},
	}
	base := []app.RegistryOption{app.WithClock(f.clock), app.WithEmitter(f.emitter)}
	f.registry = app.NewRegistry(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f.registry.Cleanup(ctx)
	})
	return f
}

func (f *fixture) create(t *testing.T, quiz domain.Quiz) *app.Session {
	t.Helper()
	s, err := f.registry.Create(context.Background(), quiz, f.manager)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return s
}

func player(name string) domain.Participant {
	return domain.Participant{ParticipantID: "pid-" + name, ConnectionID: "conn-" + name}
}

func join(t *testing.T, s *app.Session, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := s.Join(context.Background(), player(name), name); err != nil {
			t.Fatalf("join %s failed: %v", name, err)
		}
	}
}

// waitForState polls until the session reaches want; timer expiries are delivered asynchronously.
func waitForState(t *testing.T, s *app.Session, want domain.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := s.State(context.Background())
		if err != nil {
			t.Fatalf("state failed: %v", err)
		}
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected state %s, got %s", want, got)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// advanceToQuestion starts the game and lets the first cooldown elapse.
func (f *fixture) advanceToQuestion(t *testing.T, s *app.Session) {
	t.Helper()
	if err := s.Start(context.Background(), f.manager); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForState(t, s, domain.StateCooldown)
	f.clock.Advance(s.Quiz().Questions[0].CooldownDuration())
	waitForState(t, s, domain.StateQuestionActive)
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func playerByID(t *testing.T, s *app.Session, participantID string) domain.Player {
	t.Helper()
	players, err := s.Players(context.Background())
	if err != nil {
		t.Fatalf("players failed: %v", err)
	}
	for _, p := range players {
		if p.ParticipantID == participantID {
			return p
		}
	}
	t.Fatalf("player %s not found", participantID)
	return domain.Player{}
}

// holdingClock is a fake clock whose AfterFunc timers never fire while hold is set,
// leaving the session to notice an expired deadline on its own.
type holdingClock struct {
	*clockwork.FakeClock
	hold atomic.Bool
}

func (c *holdingClock) AfterFunc(d time.Duration, fn func()) clockwork.Timer {
	if c.hold.Load() {
		return stuckTimer{}
	}
	return c.FakeClock.AfterFunc(d, fn)
}

type stuckTimer struct{}

func (stuckTimer) Chan() <-chan time.Time    { return nil }
func (stuckTimer) Reset(time.Duration) bool { return false }
func (stuckTimer) Stop() bool               { return true }
