package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"gator-overflow/internal/api"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
)

// LoginRequest is the JSON body accepted by /login and /register.
type LoginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

// wantsJSON reports whether the client asked for a JSON response rather
// than a redirect.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// readCredentials accepts either a JSON body or an HTML form.
func readCredentials(r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	req.Nickname = r.PostFormValue("nickname")
	req.Password = r.PostFormValue("password")
	return req, nil
}

// HandleLoginPage renders the login form.
func (s *Server) HandleLoginPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, "login.html", loginPage{
			pageBase: s.base(r, "Log in"),
			Action:   "/login",
			Continue: safeRedirect(r.URL.Query().Get("continue")),
		})
	}
}

// HandleRegisterPage renders the registration form.
func (s *Server) HandleRegisterPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, "login.html", loginPage{
			pageBase: s.base(r, "Register"),
			Action:   "/register",
			Continue: safeRedirect(r.URL.Query().Get("continue")),
		})
	}
}

// HandleLogin checks credentials and starts a session.
func (s *Server) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := readCredentials(r)
		if err != nil {
			s.authFailed(w, r, "Log in", "/login", utils.NewInvalidInputError("malformed request body"))
			return
		}

		user, err := s.Auth.Login(r.Context(), req.Nickname, req.Password)
		if err != nil {
			s.authFailed(w, r, "Log in", "/login", err)
			return
		}

		s.startSession(w, r, user, http.StatusOK)
	}
}

// HandleRegister creates an account and logs it in.
func (s *Server) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := readCredentials(r)
		if err != nil {
			s.authFailed(w, r, "Register", "/register", utils.NewInvalidInputError("malformed request body"))
			return
		}

		user, err := s.Auth.Register(r.Context(), req.Nickname, req.Password)
		if err != nil {
			s.authFailed(w, r, "Register", "/register", err)
			return
		}

		s.startSession(w, r, user, http.StatusCreated)
	}
}

// HandleLogout clears the session and returns to `continue`.
func (s *Server) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Auth.EndSession(w)
		http.Redirect(w, r, safeRedirect(r.URL.Query().Get("continue")), http.StatusSeeOther)
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := s.Auth.StartSession(w, user)
	if err != nil {
		log.Printf("Failed to issue token for %s: %v", user.Nickname, err)
		writeError(w, err)
		return
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(api.LoginResponse{
			Success:  true,
			Token:    token,
			UserID:   user.ID.String(),
			Nickname: user.Nickname,
		})
		return
	}

	http.Redirect(w, r, safeRedirect(r.PostFormValue("continue")), http.StatusSeeOther)
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, title, action string, err error) {
	status := utils.HTTPStatus(err)
	message := http.StatusText(status)
	if appErr, ok := err.(*utils.AppError); ok && status < http.StatusInternalServerError {
		message = appErr.Message
	} else {
		log.Printf("Authentication request failed: %v", err)
	}

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(api.LoginResponse{Success: false, Error: message})
		return
	}

	s.render(w, status, "login.html", loginPage{
		pageBase: s.base(r, title),
		Action:   action,
		Continue: safeRedirect(r.PostFormValue("continue")),
		Error:    message,
	})
}
