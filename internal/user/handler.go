package user

import (
	"net/http"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/web"
)

const (
	maxAvatarSize = 5 << 20
	maxFormMemory = 10 << 20
)

type Handler struct {
	Service   *Service
	responder *web.Responder
}

func NewHandler(s *Service, responder *web.Responder) *Handler {
	return &Handler{Service: s, responder: responder}
}

// Register takes a multipart form: the profile fields plus an avatar file.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		h.responder.Error(w, r, apperr.Invalid("Invalid form data"))
		return
	}
	req := RegisterRequest{
		Name:     r.FormValue("name"),
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
		Bio:      r.FormValue("bio"),
	}
	if err := web.Validate(&req); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		h.responder.Error(w, r, apperr.Invalid("Please Upload Avatar"))
		return
	}
	defer file.Close()
	avatar, err := blob.ReadAll(header.Filename, file, maxAvatarSize)
	if err != nil {
		h.responder.Error(w, r, apperr.Invalid(err.Error()))
		return
	}

	res, err := h.Service.Register(r.Context(), &req, avatar)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	u, err := h.Service.Me(r.Context(), p.ID)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "user": u})
}

// Logout only acknowledges; tokens are stateless and dropped by the client.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	users, err := h.Service.Search(r.Context(), p.ID, r.URL.Query().Get("name"))
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var body SendRequestBody
	if err := web.Decode(r, &body); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.Service.SendRequest(r.Context(), p.ID, body.UserID); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Friend Request Sent"})
}

func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	var body AcceptRequestBody
	if err := web.Decode(r, &body); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	senderID, err := h.Service.AcceptRequest(r.Context(), p.ID, body.RequestID, *body.Accept)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	if !*body.Accept {
		web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Friend Request Rejected"})
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Friend Request Accepted", "senderId": senderID})
}

func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	requests, err := h.Service.Notifications(r.Context(), p.ID)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "allRequests": requests})
}

func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	friends, err := h.Service.Friends(r.Context(), p.ID, r.URL.Query().Get("chatId"))
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "friends": friends})
}

func (h *Handler) PushToken(w http.ResponseWriter, r *http.Request) {
	var body PushTokenBody
	if err := web.Decode(r, &body); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.Service.UpdatePushToken(r.Context(), p.ID, body.Token); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Push token updated"})
}
