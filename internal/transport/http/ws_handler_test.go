package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"exam-practice-service/internal/app"
	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/history"
	"exam-practice-service/internal/infra/memory"
)

func newTestStack(t *testing.T) (*app.Manager, *history.Store) {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	demoSet := memory.NewDemoPaperSet()
	providers := make(map[domain.Subject]app.PaperProvider)
	for _, subject := range domain.Subjects() {
		providers[subject] = demoSet.View(subject)
	}
	recon := app.NewReconciler(demoSet, nil, store)
	return app.NewManager(providers, nil, recon), store
}

func dialSession(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws/session?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg.Type, msg.Payload
}

// readUntil consumes messages until one of the given type satisfies cond;
// intermediate snapshots may be dropped by the stale-snapshot policy.
func readUntil(conn *websocket.Conn, t *testing.T, msgType string, cond func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		typ, payload := readNext(conn, t)
		if typ == msgType && (cond == nil || cond(payload)) {
			return payload
		}
	}
	t.Fatalf("never received %s matching condition", msgType)
	return nil
}

func TestWebSocketSessionFlow(t *testing.T) {
	manager, _ := newTestStack(t)
	wsHandler := NewWSHandler(manager)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/session", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialSession(t, server, "subject=Biology&paper_id=biology-2024")

	// First frame is the initial snapshot with the loaded question.
	typ, snap := readNext(conn, t)
	if typ != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", typ)
	}
	if snap["state"] != string(app.StateInProgress) {
		t.Fatalf("expected in_progress, got %v", snap["state"])
	}
	if snap["remaining_seconds"].(float64) > 3600 || snap["remaining_seconds"].(float64) < 3590 {
		t.Fatalf("expected ~3600s on a 60 minute paper, got %v", snap["remaining_seconds"])
	}
	if snap["total"].(float64) != 50 {
		t.Fatalf("expected 50 questions, got %v", snap["total"])
	}

	// Answer the first question.
	if err := conn.WriteJSON(map[string]any{"type": "select_answer", "payload": map[string]any{"option_index": 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(conn, t, "snapshot", func(p map[string]any) bool {
		answers, ok := p["answers"].([]any)
		return ok && len(answers) > 0 && answers[0].(float64) == 1
	})

	// Navigate forward and back.
	if err := conn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(conn, t, "snapshot", func(p map[string]any) bool {
		return p["pointer"].(float64) == 1
	})

	// Submission requires the confirmation round trip.
	if err := conn.WriteJSON(map[string]any{"type": "request_submit"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	prompt := readUntil(conn, t, "confirm_prompt", nil)
	if prompt["answered"].(float64) != 1 || prompt["total"].(float64) != 50 {
		t.Fatalf("unexpected prompt %+v", prompt)
	}

	if err := conn.WriteJSON(map[string]any{"type": "confirm_submit"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	final := readUntil(conn, t, "snapshot", func(p map[string]any) bool {
		return p["state"] == string(app.StateSubmitted)
	})
	result, ok := final["result"].(map[string]any)
	if !ok {
		t.Fatalf("submitted snapshot should carry a result: %+v", final)
	}
	// One correct answer out of fifty.
	if result["correct_answers"].(float64) != 1 {
		t.Fatalf("expected 1 correct, got %v", result["correct_answers"])
	}
	if id, ok := final["attempt_id"].(string); !ok || id == "" {
		t.Fatalf("expected an attempt id on the final snapshot, got %v", final["attempt_id"])
	}
}

func TestWebSocketStartsByYear(t *testing.T) {
	manager, _ := newTestStack(t)
	wsHandler := NewWSHandler(manager)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/session", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	// No paper_id: the year resolves the paper before the session starts.
	conn := dialSession(t, server, "subject=Chemistry&year=2022")
	typ, snap := readNext(conn, t)
	if typ != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", typ)
	}
	paper, ok := snap["paper"].(map[string]any)
	if !ok || paper["id"] != "chemistry-2022" {
		t.Fatalf("unexpected paper in snapshot: %+v", snap["paper"])
	}

	// An unknown year reports an error frame after the upgrade.
	conn = dialSession(t, server, "subject=Chemistry&year=1999")
	typ, payload := readNext(conn, t)
	if msg, _ := payload["message"].(string); typ != "error" || msg == "" {
		t.Fatalf("expected error frame, got %s %+v", typ, payload)
	}
}

func TestWebSocketRejectsBadStart(t *testing.T) {
	manager, _ := newTestStack(t)
	wsHandler := NewWSHandler(manager)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/session", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	// Unknown paper: the socket opens, reports the error, and closes.
	conn := dialSession(t, server, "subject=Biology&paper_id=nope")
	typ, payload := readNext(conn, t)
	msg, _ := payload["message"].(string)
	if typ != "error" || msg == "" {
		t.Fatalf("expected error frame, got %s %+v", typ, payload)
	}

	// Unknown subject: rejected before the upgrade.
	resp, err := http.Get(server.URL + "/ws/session?subject=History&paper_id=x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebSocketInvalidCommandsKeepSessionAlive(t *testing.T) {
	manager, _ := newTestStack(t)
	wsHandler := NewWSHandler(manager)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/session", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialSession(t, server, "subject=Physics&paper_id=physics-2023")
	readNext(conn, t) // initial snapshot

	// Confirming without a pending request is an error frame, not a close.
	if err := conn.WriteJSON(map[string]any{"type": "confirm_submit"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(conn, t, "error", nil)

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(conn, t, "error", nil)

	// The session still responds.
	if err := conn.WriteJSON(map[string]any{"type": "next"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(conn, t, "snapshot", func(p map[string]any) bool {
		return p["pointer"].(float64) == 1
	})
}
