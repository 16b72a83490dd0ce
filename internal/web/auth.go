package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

const invalidLogin = "Invalid login! Please check your username and/or password."

// LoginPage handles GET /login.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "login.html", &PageData{Title: "Log in"})
}

// LoginSubmit handles POST /login.
func (s *Server) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	fail := func(msg string) {
		s.Templates.RenderStatus(w, http.StatusUnauthorized, "login.html", &PageData{Title: "Log in", Error: msg})
	}

	if username == "" || password == "" {
		fail("Please enter your username and password.")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), s.DB, username)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		fail("Login failed, please try again.")
		return
	}
	if user == nil {
		fail(invalidLogin)
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		slog.Error("failed to check password", "user", username, "error", err)
	}
	if !ok {
		slog.Warn("failed login", "user", username)
		fail(invalidLogin)
		return
	}

	token, err := auth.GenerateToken(s.JWTSecret, s.SessionTTL, user.ID, user.Username)
	if err != nil {
		slog.Error("failed to generate token", "error", err)
		fail("Login failed, please try again.")
		return
	}

	setAuthCookie(w, token, s.SessionTTL)
	slog.Info("user logged in", "user", user.Username)
	http.Redirect(w, r, "/userHome", http.StatusSeeOther)
}

// signupForm keeps submitted values so the form can be re-filled.
type signupForm struct {
	PageData
	Username string
	Email    string
}

// SignupPage handles GET /signup.
func (s *Server) SignupPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, "signup.html", &signupForm{PageData: PageData{Title: "Sign up"}})
}

// SignupSubmit handles POST /signup. A new account is not logged in.
func (s *Server) SignupSubmit(w http.ResponseWriter, r *http.Request) {
	form := &signupForm{
		PageData: PageData{Title: "Sign up"},
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
	}
	password := r.FormValue("password")
	confirm := r.FormValue("password_confirm")

	fail := func(status int, msg string) {
		form.Error = msg
		s.Templates.RenderStatus(w, status, "signup.html", form)
	}

	if err := model.ValidateUsername(form.Username); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidateEmail(form.Email); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if confirm != "" && confirm != password {
		fail(http.StatusBadRequest, "Passwords do not match.")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		fail(http.StatusInternalServerError, "Sign up failed, please try again.")
		return
	}

	if _, err := store.CreateUser(r.Context(), s.DB, form.Username, form.Email, hash); err != nil {
		dupUser := errors.Is(err, store.ErrDuplicateUsername)
		dupEmail := errors.Is(err, store.ErrDuplicateEmail)
		switch {
		case dupUser && dupEmail:
			fail(http.StatusConflict, "Username and email are already taken.")
		case dupUser:
			fail(http.StatusConflict, "Username is already taken.")
		case dupEmail:
			fail(http.StatusConflict, "Email is already registered.")
		default:
			slog.Error("failed to create user", "error", err)
			fail(http.StatusInternalServerError, "Sign up failed, please try again.")
		}
		return
	}

	slog.Info("user signed up", "user", form.Username)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles GET and POST /logout. It revokes the session token, clears
// the cookie and drops the user's cached charts.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if claims := GetWebClaims(r.Context()); claims != nil {
		if err := store.RevokeToken(r.Context(), s.DB, claims.ID, claims.Expiry()); err != nil {
			slog.Error("failed to revoke token", "error", err)
		}
		s.Insights.Forget(claims.Username)
		slog.Info("user logged out", "user", claims.Username)
	}

	clearAuthCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
