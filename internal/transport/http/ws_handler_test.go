package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"capitals": {
			Subject: "Capitals",
			Questions: []domain.Question{
				{Text: "Capital of France?", Answers: []string{"Lyon", "Paris"}, Solution: 1, Cooldown: 1, Time: 10},
			},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := NewHub()
	registry := app.NewRegistry(app.WithClock(clockwork.NewFakeClock()), app.WithEmitter(hub))
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	service := app.NewGameService(registry, quizzes, auth.NewPasswordAuthenticator("PASSWORD"), hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, hub, nil).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		registry.Cleanup(ctx)
	})
	return server, hub
}

func roomSize(h *Hub, gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[gameID])
}

func dial(t *testing.T, server *httptest.Server, clientID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?clientId=" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips events until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Payload
		}
	}
}

func TestWebSocketLobbyFlow(t *testing.T) {
	server, hub := newTestServer(t)
	manager := dial(t, server, "manager-1")

	sendEvent(t, manager, app.CmdGameCreate, map[string]string{"quizId": "capitals"})
	var failure domain.MessagePayload
	if err := json.Unmarshal(readUntil(t, manager, "error"), &failure); err != nil || failure.Message != domain.ErrNotAuthorized.Message {
		t.Fatalf("expected not authorized before auth, got %+v %v", failure, err)
	}

	sendEvent(t, manager, app.CmdManagerAuth, map[string]string{"password": "PASSWORD"})
	var list domain.QuizListPayload
	if err := json.Unmarshal(readUntil(t, manager, "quizList"), &list); err != nil {
		t.Fatalf("decode quiz list: %v", err)
	}
	if len(list.Quizzes) != 1 || list.Quizzes[0].ID != "capitals" {
		t.Fatalf("unexpected quiz list: %+v", list)
	}

	sendEvent(t, manager, app.CmdGameCreate, map[string]string{"quizId": "capitals"})
	var created domain.GameCreatedPayload
	if err := json.Unmarshal(readUntil(t, manager, "gameCreated"), &created); err != nil {
		t.Fatalf("decode gameCreated: %v", err)
	}
	if !app.ValidInviteCode(created.InviteCode) {
		t.Fatalf("bad invite code %q", created.InviteCode)
	}

	player := dial(t, server, "player-1")
	sendEvent(t, player, app.CmdPlayerJoin, map[string]string{"inviteCode": created.InviteCode})
	var room domain.SuccessRoomPayload
	if err := json.Unmarshal(readUntil(t, player, "successRoom"), &room); err != nil || room.GameID != created.GameID {
		t.Fatalf("expected successRoom for %s, got %+v %v", created.GameID, room, err)
	}
	sendEvent(t, player, app.CmdPlayerLogin, map[string]string{"gameId": created.GameID, "username": "alice"})
	readUntil(t, player, "successJoin")

	var joined domain.NewPlayerPayload
	if err := json.Unmarshal(readUntil(t, manager, "newPlayer"), &joined); err != nil || joined.Player.Username != "alice" {
		t.Fatalf("manager should see alice join, got %+v %v", joined, err)
	}
	if roomSize(hub, created.GameID) != 2 {
		t.Fatalf("expected manager and player in the room, got %d", roomSize(hub, created.GameID))
	}

	player.Close()
	var removed domain.PlayerRefPayload
	if err := json.Unmarshal(readUntil(t, manager, "playerRemoved"), &removed); err != nil || removed.ParticipantID != "player-1" {
		t.Fatalf("expected player-1 removed from the lobby, got %+v %v", removed, err)
	}
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dial(t, server, "someone")

	sendEvent(t, conn, "player:dance", nil)
	var failure domain.MessagePayload
	if err := json.Unmarshal(readUntil(t, conn, "error"), &failure); err != nil || failure.Message != "unsupported message type" {
		t.Fatalf("expected unsupported message type, got %+v %v", failure, err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := json.Unmarshal(readUntil(t, conn, "error"), &failure); err != nil || failure.Message != domain.ErrInvalidPayload.Message {
		t.Fatalf("expected invalid payload, got %+v %v", failure, err)
	}

	sendEvent(t, conn, app.CmdPlayerReconnect, map[string]string{"gameId": "gone"})
	readUntil(t, conn, "reset")
}

func TestWebSocketRequiresClientID(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://play.example.com/"})
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://play.example.com")
	if !check(req) {
		t.Fatalf("listed origin should pass")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if check(req) {
		t.Fatalf("unlisted origin should fail")
	}
	if !originChecker(nil)(req) {
		t.Fatalf("empty list accepts any origin")
	}
}
