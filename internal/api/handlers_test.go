package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gwi.com/polyglot-chat/internal/auth"
	"gwi.com/polyglot-chat/internal/core"
	"gwi.com/polyglot-chat/internal/realtime"
	"gwi.com/polyglot-chat/internal/store"
)

type stubTranslator struct {
	err error
}

func (s *stubTranslator) Translate(_ context.Context, text, targetLanguage string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if targetLanguage == "French" && text == "Hello" {
		return "Bonjour", nil
	}
	return strings.ToUpper(text), nil
}

type testAPI struct {
	t          *testing.T
	server     *httptest.Server
	translator *stubTranslator
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	translator := &stubTranslator{}
	hub := realtime.NewHub()
	svc := core.NewChatService(store.NewMemoryStore(), translator, hub)
	handler := NewAPIHandler(svc, auth.NewTokenIssuer("test-secret", time.Hour), hub)

	srv := httptest.NewServer(NewRouter(handler))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &testAPI{t: t, server: srv, translator: translator}
}

func (a *testAPI) do(method, path, token string, body any) (*http.Response, map[string]any) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (a *testAPI) login(username, language string) string {
	a.t.Helper()
	resp, body := a.do(http.MethodPost, "/api/login", "", map[string]string{"username": username, "language": language})
	require.Equal(a.t, http.StatusOK, resp.StatusCode, body)
	token, ok := body["token"].(string)
	require.True(a.t, ok)
	return token
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestLoginValidation(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/api/login", "", map[string]string{"username": "  ", "language": "English"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please enter a username.", body["error"])

	resp, body = api.do(http.MethodPost, "/api/login", "", map[string]string{"username": "Alice"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Pick a preferred language for your first login.", body["error"])

	resp, body = api.do(http.MethodPost, "/api/login", "", map[string]string{"username": " Alice ", "language": " English "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "Alice", user["display_name"])
	assert.Equal(t, "English", user["language"])
}

func TestAuthenticatedRoutesNeedToken(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.do(http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/api/dashboard", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendListAndDashboardFlow(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login("Alice", "English")
	bob := api.login("Bob", "French")
	api.login("Carol", "Spanish")

	resp, body := api.do(http.MethodPost, "/api/chats/BOB/messages", alice, map[string]string{"message": " Hello "})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	sent := body["message"].(map[string]any)
	assert.Equal(t, true, sent["is_self"])
	assert.Equal(t, "Hello", sent["primary_text"])
	assert.Equal(t, "Bonjour", sent["secondary_text"])

	resp, body = api.do(http.MethodGet, "/api/dashboard?q=al", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "alice", matches[0].(map[string]any)["username"])
	assert.Equal(t, float64(1), matches[0].(map[string]any)["unread_count"])
	recent := body["recent_contacts"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, float64(1), recent[0].(map[string]any)["unread_count"])

	resp, body = api.do(http.MethodGet, "/api/chats/alice/messages", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	entry := messages[0].(map[string]any)
	assert.Equal(t, false, entry["is_self"])
	assert.Equal(t, "Alice", entry["sender_label"])
	assert.Equal(t, "Bonjour", entry["primary_text"])
	assert.Equal(t, "Hello", entry["secondary_text"])

	_, body = api.do(http.MethodGet, "/api/dashboard", bob, nil)
	recent = body["recent_contacts"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, float64(0), recent[0].(map[string]any)["unread_count"])
}

func TestSendErrors(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login("Alice", "English")
	api.login("Bob", "French")

	resp, body := api.do(http.MethodPost, "/api/chats/bob/messages", alice, map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Type a message before sending.", body["error"])

	resp, _ = api.do(http.MethodPost, "/api/chats/alice/messages", alice, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/chats/nobody/messages", alice, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/chats/bob/messages", alice, map[string]string{"message": strings.Repeat("x", 4001)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	api.translator.err = errors.New("model overloaded")
	resp, body = api.do(http.MethodPost, "/api/chats/bob/messages", alice, map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "Could not translate your message: model overloaded", body["error"])

	api.translator.err = nil
	_, body = api.do(http.MethodGet, "/api/chats/bob/messages", alice, nil)
	assert.Empty(t, body["messages"])
}

func TestSettingsUpdatesLanguage(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login("Alice", "English")

	resp, body := api.do(http.MethodPut, "/api/settings", alice, map[string]string{"language": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Language is required", body["error"])

	resp, body = api.do(http.MethodPut, "/api/settings", alice, map[string]string{"language": " Portuguese "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Portuguese", body["language"])

	_, body = api.do(http.MethodGet, "/api/me", alice, nil)
	assert.Equal(t, "Portuguese", body["language"])
}

func TestWebSocketReceivesNewMessageEvents(t *testing.T) {
	api := newTestAPI(t)
	alice := api.login("Alice", "English")
	bob := api.login("Bob", "French")

	url := "ws" + strings.TrimPrefix(api.server.URL, "http") + "/api/ws?token=" + bob
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// the socket registers asynchronously; resend until the event arrives
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	events := make(chan realtime.Event, 1)
	go func() {
		var event realtime.Event
		if err := ws.ReadJSON(&event); err == nil {
			events <- event
		}
	}()

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case event := <-events:
			assert.Equal(t, realtime.Event{Type: "message", From: "alice"}, event)
			return
		case <-tick.C:
			resp, _ := api.do(http.MethodPost, "/api/chats/bob/messages", alice, map[string]string{"message": "ping"})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
		case <-deadline:
			t.Fatal("no realtime event received")
		}
	}
}
