package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/scheduler"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.Coordinator, func()) {
	t.Helper()
	clock := clockwork.NewRealClock()
	timers := scheduler.New(clock)
	coordinator := app.NewCoordinator(clock, timers, app.Policy{SettleDelay: 50 * time.Millisecond})
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	go coordinator.Run(ctx)
	go hub.Run(ctx, coordinator.Events())

	mux := http.NewServeMux()
	mux.Handle("/healthz", NewHealthHandler(coordinator, hub))
	mux.HandleFunc("/ws", NewWSHandler(coordinator, hub).ServeWS)
	server := httptest.NewServer(mux)

	return server, coordinator, func() {
		server.Close()
		hub.CloseAll()
		cancel()
		timers.Shutdown()
	}
}

func TestWebSocketQuestionFlow(t *testing.T) {
	server, _, stop := newTestServer(t)
	defer stop()

	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// New connections get the state snapshot first.
	readUntil(conn, t, "session-state")

	send(conn, t, "join", map[string]any{"displayName": "Ann"})
	_, joined := readUntil(conn, t, "player-joined")
	player, ok := joined["player"].(map[string]any)
	if !ok {
		t.Fatalf("expected player in join payload, got %+v", joined)
	}
	playerID, _ := player["id"].(string)
	if playerID == "" {
		t.Fatalf("expected player id, got %+v", player)
	}

	send(conn, t, "start-session", nil)
	send(conn, t, "push-question", map[string]any{
		"text":               "What is 2 + 2?",
		"options":            []string{"3", "4", "5", "6"},
		"correctOptionIndex": 1,
		"timeLimitSeconds":   30,
	})
	_, opened := readUntil(conn, t, "question-opened")
	if _, hasKey := opened["correctIndex"]; hasKey {
		t.Fatalf("answer key leaked in question-opened payload: %+v", opened)
	}

	send(conn, t, "submit-answer", map[string]any{"playerId": playerID, "answerIndex": 1})

	// Ann is the only connected player, so the settle timer closes the question.
	_, results := readUntil(conn, t, "question-results")
	if results["totalCorrect"].(float64) != 1 {
		t.Fatalf("expected 1 correct answer, got %+v", results)
	}

	// A second answer for the same question is rejected back to this client only.
	send(conn, t, "submit-answer", map[string]any{"playerId": playerID, "answerIndex": 0})
	readUntil(conn, t, "error")
}

func TestHealthProbe(t *testing.T) {
	server, coordinator, stop := newTestServer(t)
	defer stop()

	if _, err := coordinator.StartSession(); err != nil {
		t.Fatalf("start session: %v", err)
	}

	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	// The initial snapshot proves the connection is registered.
	readUntil(conn, t, "session-state")

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status        string `json:"status"`
		Connections   int    `json:"connections"`
		SessionActive bool   `json:"sessionActive"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "ok" || !body.SessionActive || body.Connections != 1 {
		t.Fatalf("unexpected health payload: %+v", body)
	}
}

func send(conn *websocket.Conn, t *testing.T, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips broadcasts until a message of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) (string, map[string]any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type    string         `json:"type"`
			Payload map[string]any `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %s: %v", want, err)
		}
		if msg.Type == want {
			return msg.Type, msg.Payload
		}
	}
}
