package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"directchat/internal/domain"
	"directchat/internal/security"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

var errMissingToken = wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			// Non-browser clients send no Origin and authenticate with a token.
			return true
		}
		if wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

// extractTokenFromWSRequest looks for a session token in the Authorization
// header, the "bearer, <token>" subprotocol pair, the token query parameter
// and the token cookie, in that order.
func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			token := parts[1]
			if token != "" {
				return token, nil
			}
		}
	}

	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value, nil
	}

	return "", errMissingToken
}

// authenticate resolves the connecting user. The legacy userId query
// parameter is honoured only when it names the token's own subject.
func authenticate(r *http.Request, tokens *security.TokenService, users domain.UserRepository) (*domain.User, error) {
	tokenStr, err := extractTokenFromWSRequest(r)
	if err != nil {
		return nil, err
	}
	sub, err := tokens.Subject(tokenStr)
	if err != nil {
		return nil, wsAuthError{status: http.StatusUnauthorized, msg: "invalid token"}
	}
	if claimed := r.URL.Query().Get("userId"); claimed != "" && claimed != sub {
		return nil, wsAuthError{status: http.StatusForbidden, msg: "userId does not match session"}
	}

	user, err := users.GetByID(r.Context(), sub)
	if err != nil {
		return nil, wsAuthError{status: http.StatusInternalServerError, msg: "user lookup failed"}
	}
	if user == nil {
		return nil, wsAuthError{status: http.StatusUnauthorized, msg: "user not found"}
	}
	return user, nil
}

// MakeHandler returns an HTTP handler for the /ws endpoint. After the
// handshake the connection is attached to the hub and the handler blocks
// until it closes.
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	allowedOrigins []string,
	log *slog.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		user, err := authenticate(r, tokens, users)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("ws upgrade failed", "err", err)
			return
		}

		client := newClient(user.ID, conn, hub.sendBuffer, log)
		hub.Attach(client)
		defer hub.Detach(client)

		go client.writePump(hub.pingInterval)
		client.readPump(hub.pingInterval)
	}
}
