package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"directchat/internal/config"
	"directchat/internal/domain"
	"directchat/internal/metrics"
	"directchat/internal/security"
	"directchat/internal/service"
	"directchat/internal/store"
	"directchat/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
// sink receives every event the message engine emits; it normally fans out to hub.
func NewRouter(
	cfg *config.Config,
	st *store.Store,
	hub *ws.Hub,
	sink domain.EventSink,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
	log *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := service.NewAuthService(st.Users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(st.Users, st.Messages)
	msgSvc := service.NewMessageService(st.Users, st.Conversations, st.Messages, sink, log)
	files := NewFileStore(cfg.UploadDir, int64(cfg.MaxUploadMB)<<20)
	limiter := newLimiterPool(cfg.SendRatePerSec, cfg.SendRateBurst)
	cookies := cookieSettings{ttl: tokenSvc.TTL(), secure: cfg.Env == "production"}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "online": len(hub.Online())})
	})
	r.Handle("/metrics", metrics.Handler())

	// The socket outlives any request timeout.
	r.Get("/ws", ws.MakeHandler(hub, tokenSvc, st.Users, cfg.CORSOrigins, log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))

		r.Get("/uploads/{filename}", handleServeUpload(files))

		r.Route("/api", func(r chi.Router) {
			r.Route("/user", func(r chi.Router) {
				r.Post("/signup", handleSignup(authSvc, cookies, log))
				r.Post("/login", handleLogin(authSvc, cookies, log))
				r.Post("/logout", handleLogout(cookies))

				r.Group(func(r chi.Router) {
					r.Use(AuthMiddleware(authSvc, log))
					r.Get("/allusers", handleListContacts(userSvc, log))
					r.Get("/online", handleListOnline(hub))
					r.Get("/blocked", handleListBlocked(userSvc, log))
					r.Post("/block/{id}", handleBlock(userSvc, log))
					r.Post("/unblock/{id}", handleUnblock(userSvc, log))
					r.Post("/upload", handleUpload(files, log))
				})
			})

			r.Route("/message", func(r chi.Router) {
				r.Use(AuthMiddleware(authSvc, log))

				r.Group(func(r chi.Router) {
					r.Use(rateLimit(limiter))
					r.Post("/send/{id}", handleSendText(msgSvc, log))
					r.Post("/send-image/{id}", handleSendUpload(msgSvc, files, "image", domain.KindImage, log))
					r.Post("/send-file/{id}", handleSendUpload(msgSvc, files, "file", "", log))
					r.Post("/send-attachment/{id}", handleSendAttachment(msgSvc, log))
					r.Post("/send-location/{id}", handleSendLocation(msgSvc, log))
					r.Post("/send-contact/{id}", handleSendContact(msgSvc, log))
					r.Post("/send-poll/{id}", handleSendPoll(msgSvc, log))
				})

				r.Post("/vote/{messageId}", handleVote(msgSvc, log))
				r.Get("/pending-messages", handleListPending(msgSvc, log))
				r.Post("/accept-pending/{messageId}", handleAcceptPending(msgSvc, log))
				r.Post("/reject-pending/{messageId}", handleRejectPending(msgSvc, log))
				r.Get("/get/{id}", handleGetMessages(msgSvc, log))
				r.Post("/mark-seen/{id}", handleMarkSeen(msgSvc, log))
				r.Post("/clear/{id}", handleClear(msgSvc, log))
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Invalid("invalid JSON body")
	}
	return nil
}
