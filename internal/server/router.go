// Package server mounts every HTTP surface on one chi router.
package server

import (
	"net/http"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/admin"
	"github.com/ZUXXSU/chathubserver/internal/analytics"
	"github.com/ZUXXSU/chathubserver/internal/chat"
	"github.com/ZUXXSU/chathubserver/internal/config"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/realtime"
	"github.com/ZUXXSU/chathubserver/internal/user"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	User      *user.Handler
	Chat      *chat.Handler
	Admin     *admin.Handler
	Analytics *analytics.Handler
	Realtime  *realtime.Handler
}

func NewRouter(h Handlers, auth *middleware.AuthMiddleware, uploadDir string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger.Named("http")))
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Hello World"))
	})
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))

	r.With(auth.Handle).Get("/ws", h.Realtime.ServeWs)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/new", h.User.Register)
			r.Post("/login", h.User.Login)

			r.Group(func(r chi.Router) {
				r.Use(auth.Handle)
				r.Get("/me", h.User.Me)
				r.Get("/logout", h.User.Logout)
				r.Get("/search", h.User.SearchUsers)
				r.Put("/sendrequest", h.User.SendRequest)
				r.Put("/acceptrequest", h.User.AcceptRequest)
				r.Get("/notifications", h.User.Notifications)
				r.Get("/friends", h.User.Friends)
				r.Put("/pushtoken", h.User.PushToken)
			})
		})

		r.Route("/chat", func(r chi.Router) {
			r.Use(auth.Handle)
			r.Post("/new", h.Chat.NewGroup)
			r.Get("/my", h.Chat.MyChats)
			r.Get("/my/groups", h.Chat.MyGroups)
			r.Put("/addmembers", h.Chat.AddMembers)
			r.Put("/removemember", h.Chat.RemoveMember)
			r.Delete("/leave/{id}", h.Chat.Leave)
			r.Post("/message", h.Chat.SendAttachments)
			r.Get("/message/{id}", h.Chat.Messages)
			r.Get("/{id}", h.Chat.Details)
			r.Put("/{id}", h.Chat.Rename)
			r.Delete("/{id}", h.Chat.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Handle)
			r.Post("/verify", h.Admin.Verify)
			r.Get("/logout", h.Admin.Logout)

			r.Group(func(r chi.Router) {
				r.Use(auth.AdminOnly)
				r.Get("/", h.Admin.Data)
				r.Get("/users", h.Admin.Users)
				r.Get("/chats", h.Admin.Chats)
				r.Get("/messages", h.Admin.Messages)
				r.Get("/stats", h.Admin.Stats)
			})
		})

		r.With(auth.Soft).Post("/data/send", h.Analytics.Send)
	})

	return r
}

// NewHTTPServer has no write timeout since /ws connections are long lived.
func NewHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
