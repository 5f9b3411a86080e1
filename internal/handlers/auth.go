package handlers

import (
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/drivebidrent/internal/auth"
	"github.com/ukydev/drivebidrent/internal/db"
	"github.com/ukydev/drivebidrent/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
	}
}

// Login handles participant login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := decodeJSON(r, &loginReq, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	email := strings.ToLower(strings.TrimSpace(loginReq.Email))
	if email == "" || loginReq.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.userCollection.FindUserByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "Account is deactivated")
		return
	}
	if user.IsBlocked {
		writeError(w, http.StatusForbidden, "Account is blocked")
		return
	}

	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	h.writeTokens(w, r, user, http.StatusOK, "Login successful")

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}
}

// Register handles participant registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if err := decodeJSON(r, &registerReq, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	registerReq.Email = strings.ToLower(strings.TrimSpace(registerReq.Email))

	if err := h.authService.ValidateName(registerReq.FirstName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.authService.ValidateEmail(registerReq.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !models.IsSelfRegistrable(registerReq.Role) {
		writeError(w, http.StatusBadRequest, "Invalid role")
		return
	}
	if registerReq.Role == models.RoleMechanic && strings.TrimSpace(registerReq.ShopName) == "" {
		writeError(w, http.StatusBadRequest, "Mechanics must provide a shop name")
		return
	}

	_, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email)
	if err == nil {
		writeError(w, http.StatusConflict, "Email already exists")
		return
	}
	if !errors.Is(err, db.ErrNotFound) {
		writeServiceError(w, r, err)
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// mechanics wait for an admin's approval before taking inspections
	user, err := h.userCollection.InsertUser(r.Context(), models.User{
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         registerReq.Role,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
		Phone:        registerReq.Phone,
		City:         registerReq.City,
		ShopName:     registerReq.ShopName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	log.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("Participant registered")
	h.writeTokens(w, r, user, http.StatusCreated, "Registration successful")
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, user *models.User, status int, message string) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, status, message, models.LoginResponse{
		Token:        token,
		RefreshToken: refreshToken,
		User:         *user,
	})
}

// GetProfile returns the current participant's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeSuccess(w, http.StatusOK, "", user)
}

// UpdateProfile updates the current participant's contact details
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	var updateReq struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		City      string `json:"city"`
	}
	if err := decodeJSON(r, &updateReq, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Phone != "" {
		user.Phone = updateReq.Phone
	}
	if updateReq.City != "" {
		user.City = updateReq.City
	}

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Profile updated successfully", user)
}

// ChangePassword changes the current participant's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsOrUnauthorized(w, r)
	if !ok {
		return
	}

	var passwordReq struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &passwordReq, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if passwordReq.CurrentPassword == "" || passwordReq.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(passwordReq.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user.PasswordHash = newPasswordHash
	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Password changed successfully", nil)
}
