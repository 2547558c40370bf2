// Package handlers exposes the chat core over HTTP and websocket.
package handlers

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/snapspot/snapspot-chat.git/internal/auth"
	"github.com/snapspot/snapspot-chat.git/internal/chat"
	"github.com/snapspot/snapspot-chat.git/internal/directory"
	"github.com/snapspot/snapspot-chat.git/internal/presence"
	"github.com/snapspot/snapspot-chat.git/internal/store"
)

type ChatHandlers struct {
	store     *store.MessageStore
	router    *chat.Router
	registry  *presence.Registry
	gateway   *chat.Gateway
	directory directory.Resolver
	verifier  auth.Verifier
	validate  *validator.Validate
	log       *slog.Logger

	sessionBuffer int
}

func New(
	st *store.MessageStore,
	router *chat.Router,
	registry *presence.Registry,
	gateway *chat.Gateway,
	dir directory.Resolver,
	verifier auth.Verifier,
	log *slog.Logger,
	sessionBuffer int,
) *ChatHandlers {
	return &ChatHandlers{
		store:         st,
		router:        router,
		registry:      registry,
		gateway:       gateway,
		directory:     dir,
		verifier:      verifier,
		validate:      validator.New(),
		log:           log,
		sessionBuffer: sessionBuffer,
	}
}

// Register mounts the websocket endpoint and the REST chat surface.
func (h *ChatHandlers) Register(app *fiber.App) {
	app.Get("/api/ws", websocket.New(h.WebsocketHandler))

	api := app.Group("/api/chat", h.RequireAuth)
	api.Get("/conversations", h.ConversationsHandler)
	api.Get("/messages/:userId", h.MessagesHandler)
	api.Post("/messages", h.SendMessageHandler)
	api.Put("/messages/:messageId/read", h.MarkReadHandler)
	api.Get("/online", h.OnlineHandler)
}

// RequireAuth resolves the bearer token and stashes the user id in locals.
func (h *ChatHandlers) RequireAuth(c *fiber.Ctx) error {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	c.Locals("userID", userID)
	return c.Next()
}

// WebsocketHandler GET /api/ws
func (h *ChatHandlers) WebsocketHandler(c *websocket.Conn) {
	s := chat.NewSession(c, h.sessionBuffer)
	h.gateway.OnConnect(s)
	defer h.gateway.OnDisconnect(s)
	go s.WritePump()
	h.gateway.Serve(s)
}

type messageJSON struct {
	store.Message
	Sender    directory.Profile `json:"sender"`
	Recipient directory.Profile `json:"recipient"`
}

type conversationJSON struct {
	User        directory.Profile `json:"user"`
	LastMessage store.Message     `json:"last_message"`
	UnreadCount int               `json:"unread_count"`
}

// ConversationsHandler GET /api/chat/conversations
func (h *ChatHandlers) ConversationsHandler(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	summaries, err := h.store.ConversationsFor(userID)
	if err != nil {
		h.log.Error("conversation aggregation failed", "user", userID, "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	out := lo.Map(summaries, func(s store.ConversationSummary, _ int) conversationJSON {
		return conversationJSON{
			User:        h.profile(s.CounterpartID),
			LastMessage: s.LastMessage,
			UnreadCount: s.UnreadCount,
		}
	})
	return c.JSON(out)
}

// MessagesHandler GET /api/chat/messages/:userId
//
// Fetching a conversation marks the counterpart's messages read; the
// response still carries the pre-fetch read flags.
func (h *ChatHandlers) MessagesHandler(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	otherID := c.Params("userId")

	messages, err := h.store.History(userID, otherID)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Error("history fetch failed", "user", userID, "other", otherID, "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	if err := h.store.MarkRead(otherID, userID); err != nil {
		h.log.Warn("mark read on fetch failed", "user", userID, "other", otherID, "error", err)
	}
	return c.JSON(lo.Map(messages, func(m store.Message, _ int) messageJSON {
		return h.decorate(m)
	}))
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Content     string `json:"content" validate:"required"`
}

// SendMessageHandler POST /api/chat/messages
//
// REST sends go through the same router as socket frames, so an online
// recipient still gets the live new_message event.
func (h *ChatHandlers) SendMessageHandler(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "recipient_id and content are required"})
	}

	res, err := h.router.Route(userID, req.RecipientID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		h.log.Error("send failed", "sender", userID, "recipient", req.RecipientID, "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}
	return c.JSON(h.decorate(res.Message))
}

// MarkReadHandler PUT /api/chat/messages/:messageId/read
func (h *ChatHandlers) MarkReadHandler(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)
	msg, err := h.store.MarkOneRead(c.Params("messageId"), userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "message not found"})
		case errors.Is(err, store.ErrNotRecipient):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not authorized"})
		default:
			h.log.Error("mark read failed", "user", userID, "error", err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	return c.JSON(h.decorate(msg))
}

// OnlineHandler GET /api/chat/online
func (h *ChatHandlers) OnlineHandler(c *fiber.Ctx) error {
	return c.JSON(h.registry.Snapshot())
}

func (h *ChatHandlers) decorate(m store.Message) messageJSON {
	return messageJSON{
		Message:   m,
		Sender:    h.profile(m.SenderID),
		Recipient: h.profile(m.RecipientID),
	}
}

func (h *ChatHandlers) profile(userID string) directory.Profile {
	p, err := h.directory.Resolve(userID)
	if err != nil {
		return directory.Placeholder(userID)
	}
	return p
}
