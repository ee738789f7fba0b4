package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Webhook event types accepted at POST /webhook.
const (
	webhookPageCreated = "page_created"
	webhookPageUpdated = "page_updated"
	webhookPageRemoved = "page_removed"
	webhookPageTrashed = "page_trashed"
)

type webhookPayload struct {
	EventType string `json:"eventType"`
	Page      struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		SpaceKey string `json:"spaceKey,omitempty"`
	} `json:"page"`
}

// WebhookServer receives remote event pushes and feeds them into the same
// stream as the poller. Accept decides whether an event is in scope.
type WebhookServer struct {
	echo   *echo.Echo
	port   int
	accept func(pageID, spaceKey string) bool
	emit   func(RemoteEvent)
	logger *slog.Logger
}

// NewWebhookServer wires the /webhook route.
func NewWebhookServer(port int, accept func(pageID, spaceKey string) bool, emit func(RemoteEvent), logger *slog.Logger) *WebhookServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &WebhookServer{echo: e, port: port, accept: accept, emit: emit, logger: logger}
	e.POST("/webhook", s.handle)
	return s
}

func (s *WebhookServer) handle(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	if payload.Page.ID == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	switch payload.EventType {
	case webhookPageCreated, webhookPageUpdated, webhookPageRemoved, webhookPageTrashed:
	default:
		return c.NoContent(http.StatusBadRequest)
	}

	if s.accept != nil && !s.accept(payload.Page.ID, payload.Page.SpaceKey) {
		// Out-of-scope events are acknowledged but never dispatched.
		return c.NoContent(http.StatusForbidden)
	}

	switch payload.EventType {
	case webhookPageCreated, webhookPageUpdated:
		s.emit(RemoteEvent{PageID: payload.Page.ID, Type: RemoteChanged})
	case webhookPageRemoved, webhookPageTrashed:
		s.logger.Info("remote page removed", "page", payload.Page.ID, "title", payload.Page.Title)
		s.emit(RemoteEvent{PageID: payload.Page.ID, Type: RemoteDeleted})
	}
	return c.NoContent(http.StatusNoContent)
}

// Start runs the server until Shutdown. It returns nil after a clean
// shutdown.
func (s *WebhookServer) Start() error {
	err := s.echo.Start(fmt.Sprintf(":%d", s.port))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *WebhookServer) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the HTTP handler for tests.
func (s *WebhookServer) Handler() http.Handler {
	return s.echo
}
