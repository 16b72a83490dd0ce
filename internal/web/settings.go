package web

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/webventory/internal/auth"
	"github.com/erazemk/webventory/internal/model"
	"github.com/erazemk/webventory/internal/store"
)

// SettingsPage handles GET /userSettings.
func (s *Server) SettingsPage(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Settings")
	s.Templates.Render(w, "settings.html", &data)
}

// SettingsSubmit handles POST /userSettings (change own password).
func (s *Server) SettingsSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	data := s.page(r, "Settings")

	fail := func(status int, msg string) {
		data.Error = msg
		s.Templates.RenderStatus(w, status, "settings.html", &data)
	}

	currentPassword := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")

	if currentPassword == "" || newPassword == "" {
		fail(http.StatusBadRequest, "Please enter your current and new password.")
		return
	}
	if err := model.ValidatePassword(newPassword); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	user, err := store.GetUser(r.Context(), s.DB, claims.UserID)
	if err != nil || user == nil {
		slog.Error("failed to load user", "user", claims.Username, "error", err)
		fail(http.StatusInternalServerError, "Could not load your account.")
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, currentPassword)
	if err != nil {
		slog.Error("failed to check password", "user", claims.Username, "error", err)
	}
	if !ok {
		fail(http.StatusUnauthorized, "Current password is incorrect.")
		return
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		fail(http.StatusInternalServerError, "Could not save the new password.")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.DB, claims.UserID, hash); err != nil {
		slog.Error("failed to update password", "user", claims.Username, "error", err)
		fail(http.StatusInternalServerError, "Could not save the new password.")
		return
	}

	slog.Info("password changed", "user", claims.Username)
	data.Success = "Password changed."
	s.Templates.Render(w, "settings.html", &data)
}
