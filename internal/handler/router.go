package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unichat/internal/config"
	"github.com/unichat/internal/fileserver"
	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/service"
	"github.com/unichat/internal/ws"
)

// Deps is everything the HTTP layer talks to. Hub is nil in poll mode, which leaves /ws unmounted.
type Deps struct {
	Config        *config.Config
	Auth          *service.AuthService
	Chats         *service.ChatService
	Groups        *service.GroupService
	Delivery      *service.DeliveryService
	Announcements *service.AnnouncementService
	Roster        *roster.Directory
	Presence      notify.Notifier
	Files         *fileserver.Service
	Hub           *ws.Hub
}

func NewRouter(d Deps) http.Handler {
	authH := NewAuthHandler(d.Auth)
	userH := NewUserHandler(d.Roster, d.Presence)
	chatH := NewChatHandler(d.Chats)
	msgH := NewMessageHandler(d.Delivery)
	groupH := NewGroupHandler(d.Groups, d.Delivery, d.Roster)
	annH := NewAnnouncementHandler(d.Announcements)
	fileH := NewFileHandler(d.Files)
	configH := NewConfigHandler(d.Config)
	limit := middleware.NewRateLimit(0, 0)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Compress wraps the writer without http.Hijacker, so upgrades skip it.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(d.Config.CORSAllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/config/realtime", configH.GetRealtimeConfig)
	r.Get(fileserver.URLPrefix+"{filename}", fileH.Serve)
	r.With(limit.API).Post("/api/auth/login", authH.Login)

	if d.Hub != nil {
		r.With(middleware.BearerAuth(d.Auth, true)).Get("/ws", NewPushHandler(d.Hub, d.Config.CORSAllowedOrigins).Connect)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(d.Auth, false))
		r.Use(limit.API)

		r.Post("/api/auth/change-password", authH.ChangePassword)
		r.Get("/api/users/{regNumber}", userH.GetUser)

		r.Get("/api/chats", chatH.GetUserChats)
		r.Post("/api/chats/create", chatH.CreateChat)

		r.Post("/api/messages", msgH.Send)
		r.Post("/api/messages/read", msgH.MarkRead)
		r.Get("/api/messages/{chatId}", chatH.GetMessages)
		r.Post("/api/messages/{messageId}/delivered", msgH.MarkDelivered)
		r.Post("/api/messages/{messageId}/read", msgH.MarkMessageRead)

		r.Get("/api/groups", groupH.GetGroups)
		r.Post("/api/groups/create", groupH.CreateGroup)
		r.Get("/api/groups/university", groupH.GetUniversityGroups)
		r.Post("/api/groups/university/create", groupH.CreateUniversityGroup)
		r.Get("/api/groups/{groupId}", groupH.GetGroup)
		r.Post("/api/groups/{groupId}/add-members", groupH.AddMembers)
		r.Get("/api/groups/{groupId}/messages", groupH.GetMessages)
		r.Post("/api/groups/{groupId}/messages", groupH.SendMessage)

		r.Get("/api/announcements", annH.List)
		r.Post("/api/announcements", annH.Post)

		r.Post("/api/upload", fileH.Upload)
	})
	return r
}
