package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticProfiles map[identity.ID]string

func (s staticProfiles) DisplayName(_ context.Context, id identity.ID) (string, error) {
	name, ok := s[id]
	if !ok {
		return "", db.ErrNotFound
	}
	return name, nil
}

// asUser stands in for the auth middleware: ?as=<id> becomes the principal.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("as"); id != "" {
			r = r.WithContext(middleware.WithPrincipal(r.Context(), identity.Principal{ID: identity.ID(id)}))
		}
		next.ServeHTTP(w, r)
	})
}

func startServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	hub := newTestHub(&recordingHandler{})
	h := NewHandler(hub, staticProfiles{"u1": "Alice", "u2": "Bob"}, []string{"http://allowed.example"}, web.NewResponder(false, zap.NewNop()), zap.NewNop())
	srv := httptest.NewServer(asUser(http.HandlerFunc(h.ServeWs)))
	t.Cleanup(func() {
		require.NoError(t, hub.Shutdown(context.Background()))
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestServeWs_TypingAndPresenceEndToEnd(t *testing.T) {
	req := require.New(t)
	srv, hub := startServer(t)

	u1 := dial(t, srv, "u1")
	u2 := dial(t, srv, "u2")
	req.Eventually(func() bool { return hub.IsConnected("u1") && hub.IsConnected("u2") }, time.Second, 10*time.Millisecond)

	// Typing reaches the other member only
	req.NoError(u1.WriteJSON(map[string]any{
		"event":   EventStartTyping,
		"payload": map[string]any{"chatId": "c1", "members": []string{"u1", "u2"}},
	}))
	env := readEnvelope(t, u2)
	req.Equal(EventStartTyping, env.Event)
	req.JSONEq(`{"chatId":"c1"}`, string(env.Payload))

	// u1's next frame is its own join snapshot, not the typing echo
	req.NoError(u1.WriteJSON(map[string]any{
		"event":   EventChatJoined,
		"payload": map[string]any{"userId": "u1", "members": []string{"u1", "u2"}},
	}))
	env = readEnvelope(t, u1)
	req.Equal(EventOnlineUsers, env.Event)
	req.JSONEq(`["u1"]`, string(env.Payload))
	env = readEnvelope(t, u2)
	req.Equal(EventOnlineUsers, env.Event)

	req.NoError(u2.WriteJSON(map[string]any{
		"event":   EventChatJoined,
		"payload": map[string]any{"userId": "u2", "members": []string{"u1", "u2"}},
	}))
	req.JSONEq(`["u1","u2"]`, string(readEnvelope(t, u2).Payload))

	// Disconnect of u1 is announced to u2
	req.NoError(u1.Close())
	env = readEnvelope(t, u2)
	req.Equal(EventOnlineUsers, env.Event)
	req.JSONEq(`["u2"]`, string(env.Payload))
	req.NotContains(hub.Online(), identity.ID("u1"))
}

func TestServeWs_RejectsBeforeUpgrade(t *testing.T) {
	srv, _ := startServer(t)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	cases := map[string]struct {
		url    string
		header http.Header
		status int
	}{
		"no principal":   {base, nil, http.StatusUnauthorized},
		"unknown user":   {base + "?as=ghost", nil, http.StatusUnauthorized},
		"foreign origin": {base + "?as=u1", http.Header{"Origin": {"http://evil.example"}}, http.StatusForbidden},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tc.url, tc.header)
			require.Error(t, err)
			require.NotNil(t, resp)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
