package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/stacksense/web/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

type userEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

func (e userEvent) TargetUser() string { return e.UserID }

func headerUser(r *http.Request) string { return r.Header.Get("X-User-ID") }

func TestWebSocketHub_ValidatesOrigin(t *testing.T) {
	hub := handlers.NewWebSocketHub([]string{"localhost:6464"}, nil)
	defer hub.Stop()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.com")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")

	w := httptest.NewRecorder()
	hub.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden")
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	received := make(chan []byte, 1)
	hub.Register(&handlers.MockClient{SendChan: received})

	hub.Broadcast(map[string]interface{}{
		"type": "rules_updated",
		"data": "hello",
	})

	select {
	case msg := <-received:
		assert.Contains(t, string(msg), "rules_updated")
		assert.Contains(t, string(msg), "hello")
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for broadcast message")
	}
}

func TestWebSocketHub_TargetsUser(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, nil)
	go hub.Run()
	defer hub.Stop()

	alice := make(chan []byte, 1)
	bob := make(chan []byte, 1)
	hub.Register(&handlers.MockClient{SendChan: alice, UserID: "alice"})
	hub.Register(&handlers.MockClient{SendChan: bob, UserID: "bob"})

	hub.Broadcast(userEvent{Type: "state_updated", UserID: "alice"})

	select {
	case msg := <-alice:
		assert.Contains(t, string(msg), "alice")
	case <-time.After(1 * time.Second):
		t.Fatal("alice did not receive her event")
	}

	select {
	case <-bob:
		t.Fatal("bob received another user's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebSocketHub_EndToEnd(t *testing.T) {
	hub := handlers.NewWebSocketHub(nil, headerUser)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		HTTPHeader: http.Header{"X-User-Id": []string{"carol"}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(userEvent{Type: "state_updated", UserID: "carol"})

	_, data, err := conn.Read(ctx) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	require.NoError(t, err)
	assert.Contains(t, string(data), `"user_id":"carol"`)
}
