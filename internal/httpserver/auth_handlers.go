package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"directchat/internal/domain"
	"directchat/internal/service"
)

type signupRequest struct {
	Fullname        string `json:"fullname"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	ProfilePic      string `json:"profilePic"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string       `json:"message"`
	User    *domain.User `json:"user"`
	Token   string       `json:"token"`
}

type cookieSettings struct {
	ttl    time.Duration
	secure bool
}

func (c cookieSettings) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c cookieSettings) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func handleSignup(authSvc *service.AuthService, cookies cookieSettings, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		sess, err := authSvc.Signup(r.Context(), service.SignupInput{
			Fullname:        req.Fullname,
			Email:           req.Email,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
			ProfilePic:      req.ProfilePic,
		})
		if err != nil {
			writeError(w, log, err)
			return
		}
		cookies.set(w, sess.Token)
		writeJSON(w, http.StatusCreated, authResponse{
			Message: "User created successfully",
			User:    sess.User,
			Token:   sess.Token,
		})
	}
}

func handleLogin(authSvc *service.AuthService, cookies cookieSettings, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		sess, err := authSvc.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, log, err)
			return
		}
		cookies.set(w, sess.Token)
		writeJSON(w, http.StatusOK, authResponse{
			Message: "Login successful",
			User:    sess.User,
			Token:   sess.Token,
		})
	}
}

// handleLogout only drops the cookie; tokens are stateless.
func handleLogout(cookies cookieSettings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookies.clear(w)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
	}
}
