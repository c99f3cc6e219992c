package admin

import (
	"net/http"

	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/web"
)

type Handler struct {
	service   *Service
	responder *web.Responder
}

func NewHandler(service *Service, responder *web.Responder) *Handler {
	return &Handler{service: service, responder: responder}
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	token, err := h.service.Verify(r.Context(), p.ID, req.SecretKey)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Authenticated Successfully, Welcome BOSS",
		"token":   token,
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged Out Successfully"})
}

func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, map[string]any{"admin": true})
}

// Users lists accounts, or anonymous devices when ?unknown=true.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	var (
		users any
		err   error
	)
	if r.URL.Query().Get("unknown") == "true" {
		users, err = h.service.Visitors(r.Context())
	} else {
		users, err = h.service.Users(r.Context())
	}
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (h *Handler) Chats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.service.Chats(r.Context())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "chats": chats})
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.Messages(r.Context())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}
