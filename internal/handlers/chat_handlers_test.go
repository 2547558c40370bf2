package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/snapspot/snapspot-chat.git/internal/auth"
	"github.com/snapspot/snapspot-chat.git/internal/chat"
	"github.com/snapspot/snapspot-chat.git/internal/directory"
	"github.com/snapspot/snapspot-chat.git/internal/presence"
	"github.com/snapspot/snapspot-chat.git/internal/store"
)

const testSecret = "handlers-test-secret"

type testEnv struct {
	app      *fiber.App
	store    *store.MessageStore
	registry *presence.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	st, err := store.NewMessageStore(db, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, st.Close())
		require.NoError(t, db.Close())
	})

	registry := presence.NewRegistry()
	router := chat.NewRouter(st, registry, slog.Default())
	verifier := auth.NewJWTVerifier(testSecret)
	gateway := chat.NewGateway(registry, router, verifier, slog.Default())
	dir := directory.StaticResolver{
		"alice": {UserID: "alice", Username: "Alice", Avatar: "https://img.example/alice.png"},
	}

	app := fiber.New()
	New(st, router, registry, gateway, dir, verifier, slog.Default(), 16).Register(app)
	return &testEnv{app: app, store: st, registry: registry}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (e *testEnv) do(t *testing.T, method, target, authHeader, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if authHeader != "" {
		req.Header.Set(fiber.HeaderAuthorization, authHeader)
	}
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func Test_Auth_Middleware(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, _ := env.do(t, fiber.MethodGet, "/api/chat/conversations", "", "")
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, fiber.MethodGet, "/api/chat/conversations", "Bearer not-a-token", "")
	req.Equal(fiber.StatusUnauthorized, resp.StatusCode)
}

func Test_Send_And_Fetch_Messages(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, body := env.do(t, fiber.MethodPost, "/api/chat/messages", bearer(t, "alice"),
		`{"recipient_id":"bob","content":"hello bob"}`)
	req.Equal(fiber.StatusOK, resp.StatusCode)

	var sent struct {
		ID     string `json:"id"`
		Sender struct {
			Username string `json:"username"`
		} `json:"sender"`
		Recipient struct {
			Username string `json:"username"`
		} `json:"recipient"`
		Content string `json:"content"`
	}
	req.NoError(json.Unmarshal(body, &sent))
	req.Equal("hello bob", sent.Content)
	req.Equal("Alice", sent.Sender.Username)
	req.Equal("unknown", sent.Recipient.Username, "unresolved users get a placeholder profile")

	resp, body = env.do(t, fiber.MethodGet, "/api/chat/messages/alice", bearer(t, "bob"), "")
	req.Equal(fiber.StatusOK, resp.StatusCode)
	var history []struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Read    bool   `json:"read"`
	}
	req.NoError(json.Unmarshal(body, &history))
	req.Len(history, 1)
	req.Equal(sent.ID, history[0].ID)
	req.False(history[0].Read, "response carries pre-fetch read flags")

	// fetching marked the conversation read
	messages, err := env.store.History("alice", "bob")
	req.NoError(err)
	req.True(messages[0].Read)
}

func Test_Send_Message_Validation(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, _ := env.do(t, fiber.MethodPost, "/api/chat/messages", bearer(t, "alice"), `{"content":"no recipient"}`)
	req.Equal(fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, fiber.MethodPost, "/api/chat/messages", bearer(t, "alice"), `{"recipient_id":"bob","content":"   "}`)
	req.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func Test_Conversations(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	_, err := env.store.Append("alice", "bob", "first")
	req.NoError(err)
	_, err = env.store.Append("alice", "bob", "second")
	req.NoError(err)

	resp, body := env.do(t, fiber.MethodGet, "/api/chat/conversations", bearer(t, "bob"), "")
	req.Equal(fiber.StatusOK, resp.StatusCode)

	var conversations []struct {
		User struct {
			UserID   string `json:"user_id"`
			Username string `json:"username"`
		} `json:"user"`
		LastMessage struct {
			Content string `json:"content"`
		} `json:"last_message"`
		UnreadCount int `json:"unread_count"`
	}
	req.NoError(json.Unmarshal(body, &conversations))
	req.Len(conversations, 1)
	req.Equal("alice", conversations[0].User.UserID)
	req.Equal("Alice", conversations[0].User.Username)
	req.Equal("second", conversations[0].LastMessage.Content)
	req.Equal(2, conversations[0].UnreadCount)
}

func Test_Mark_One_Read(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	msg, err := env.store.Append("alice", "bob", "read me")
	req.NoError(err)

	resp, _ := env.do(t, fiber.MethodPut, "/api/chat/messages/missing/read", bearer(t, "bob"), "")
	req.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, fiber.MethodPut, "/api/chat/messages/"+msg.ID+"/read", bearer(t, "alice"), "")
	req.Equal(fiber.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, fiber.MethodPut, "/api/chat/messages/"+msg.ID+"/read", bearer(t, "bob"), "")
	req.Equal(fiber.StatusOK, resp.StatusCode)
	var updated struct {
		Read bool `json:"read"`
	}
	req.NoError(json.Unmarshal(body, &updated))
	req.True(updated.Read)
}

type staticSession struct{ id string }

func (s *staticSession) SID() string       { return s.id }
func (s *staticSession) Push([]byte) error { return nil }

func Test_Online(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp, body := env.do(t, fiber.MethodGet, "/api/chat/online", bearer(t, "alice"), "")
	req.Equal(fiber.StatusOK, resp.StatusCode)
	req.JSONEq(`[]`, string(body))

	env.registry.Register("bob", &staticSession{id: "s-bob"})
	_, body = env.do(t, fiber.MethodGet, "/api/chat/online", bearer(t, "alice"), "")
	req.JSONEq(`["bob"]`, string(body))
}
