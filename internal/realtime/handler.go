package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/db"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ProfileSource confirms a user still exists and yields the display name
// stamped on outgoing messages.
type ProfileSource interface {
	DisplayName(ctx context.Context, id identity.ID) (string, error)
}

type Handler struct {
	hub       *Hub
	profiles  ProfileSource
	upgrader  websocket.Upgrader
	responder *web.Responder
	logger    *zap.Logger
}

func NewHandler(hub *Hub, profiles ProfileSource, origins []string, responder *web.Responder, logger *zap.Logger) *Handler {
	return &Handler{
		hub:      hub,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		responder: responder,
		logger:    logger.Named("ws"),
	}
}

// ServeWs upgrades an authenticated request. It runs behind the auth
// middleware.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		h.responder.Error(w, r, apperr.Unauthenticated("Please login to access this route"))
		return
	}

	name, err := h.profiles.DisplayName(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.responder.Error(w, r, apperr.Unauthenticated("Please login to access this route"))
			return
		}
		h.responder.Error(w, r, apperr.Wrap(err, "load profile"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.String("identity", string(p.ID)), zap.Error(err))
		return
	}

	// The request context ends when ServeWs returns; the connection outlives it.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	client := newClient(h.hub, conn, Sender{ID: p.ID, Name: name}, cancel, h.logger)
	if err := h.hub.Serve(client, func() { client.readPump(ctx) }); err != nil {
		cancel()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	go client.writePump()
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return lo.Contains(allowed, "*") || lo.Contains(allowed, strings.TrimRight(origin, "/"))
	}
}
