package chat

import (
	"net/http"
	"strconv"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/blob"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/go-chi/chi/v5"
)

const (
	maxAttachmentSize = 10 << 20
	maxUploadMemory   = 32 << 20
)

type Handler struct {
	service   *Service
	pipeline  *Pipeline
	responder *web.Responder
}

func NewHandler(service *Service, pipeline *Pipeline, responder *web.Responder) *Handler {
	return &Handler{service: service, pipeline: pipeline, responder: responder}
}

func ok(w http.ResponseWriter, status int, fields map[string]any) {
	fields["success"] = true
	web.JSON(w, status, fields)
}

func (h *Handler) NewGroup(w http.ResponseWriter, r *http.Request) {
	var req NewGroupRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	id, err := h.service.NewGroup(r.Context(), p.ID, &req)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusCreated, map[string]any{"message": "Group Created", "chatId": id})
}

func (h *Handler) MyChats(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	chats, err := h.service.MyChats(r.Context(), p.ID)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *Handler) MyGroups(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	groups, err := h.service.MyGroups(r.Context(), p.ID)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req AddMembersRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.service.AddMembers(r.Context(), p.ID, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "Members added successfully"})
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var req RemoveMemberRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.service.RemoveMember(r.Context(), p.ID, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "Member removed successfully"})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.service.Leave(r.Context(), p.ID, chi.URLParam(r, "id")); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "Left Group Successfully"})
}

// SendAttachments takes a multipart form with chatId and up to five files.
func (h *Handler) SendAttachments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.responder.Error(w, r, apperr.Invalid("Invalid form data"))
		return
	}
	chatID := r.FormValue("chatId")
	if chatID == "" {
		h.responder.Error(w, r, apperr.Invalid("Please Enter chatId"))
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) > MaxAttachments {
		h.responder.Error(w, r, apperr.Invalid("Files Can't be more than 5"))
		return
	}
	files := make([]blob.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.responder.Error(w, r, apperr.Invalid("Unreadable file "+fh.Filename))
			return
		}
		file, err := blob.ReadAll(fh.Filename, f, maxAttachmentSize)
		f.Close()
		if err != nil {
			h.responder.Error(w, r, apperr.Invalid(err.Error()))
			return
		}
		files = append(files, file)
	}

	p, _ := middleware.PrincipalFrom(r.Context())
	msg, err := h.pipeline.SendWithAttachments(r.Context(), realtime.Sender{ID: p.ID, Name: p.Name}, chatID, files)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": msg})
}

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	p, _ := middleware.PrincipalFrom(r.Context())
	res, err := h.service.Messages(r.Context(), p.ID, chi.URLParam(r, "id"), page)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"messages": res.Messages, "totalPages": res.TotalPages})
}

func (h *Handler) Details(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	populate := r.URL.Query().Get("populate") == "true"
	d, err := h.service.Details(r.Context(), p.ID, chi.URLParam(r, "id"), populate)
	if err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"chat": d})
}

func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := web.Decode(r, &req); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.service.Rename(r.Context(), p.ID, chi.URLParam(r, "id"), req.Name); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "Group renamed successfully"})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	if err := h.service.Delete(r.Context(), p.ID, chi.URLParam(r, "id")); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"message": "Chat Deleted Successfully"})
}
