package http

import (
	"log/slog"
	"net/http"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/auth"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/domain"
	edgemw "github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/middleware"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/service"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/httputil"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/validator"
)

// AuthHandler handles the identity endpoints the edge serves itself.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for customer registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72,password"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// LoginRequest is the JSON request body for customer and admin login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// RefreshRequest is the JSON request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,jwt"`
}

// LogoutRequest is the optional JSON request body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,jwt"`
}

// ChangePasswordRequest is the JSON request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,max=72,password"`
}

// CreateAdminRequest is the JSON request body for creating an admin account.
type CreateAdminRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72,password"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=admin superadmin"`
}

// --- Response types ---

// AuthResponse wraps a customer with its tokens.
type AuthResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// AdminAuthResponse wraps an admin with its tokens.
type AdminAuthResponse struct {
	Admin  *domain.AdminUser `json:"admin"`
	Tokens *domain.TokenPair `json:"tokens"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Register handles POST /api/users
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, AuthResponse{User: user, Tokens: tokens})
}

// Login handles POST /api/users/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, AuthResponse{User: user, Tokens: tokens})
}

// AdminLogin handles POST /api/users/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	admin, tokens, err := h.service.AdminLogin(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, AdminAuthResponse{Admin: admin, Tokens: tokens})
}

// Refresh handles POST /api/users/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, tokens)
}

// Logout handles POST /api/users/logout. The body is optional; when it
// carries a refresh token that token is revoked as well.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req LogoutRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(w, r, &req); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}
	}

	if err := h.service.Logout(r.Context(), claims, req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "logged out"})
}

// GetProfile handles GET /api/users/profile. Admin tokens get their admin
// record.
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if claims.Kind == domain.KindAdmin {
		h.writeAdminProfile(w, r, claims.UserID)
		return
	}

	user, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user)
}

// GetAdminProfile handles GET /api/users/admin/profile
func (h *AuthHandler) GetAdminProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	if claims.Kind != domain.KindAdmin {
		httputil.WriteErrorCode(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required")
		return
	}

	h.writeAdminProfile(w, r, claims.UserID)
}

func (h *AuthHandler) writeAdminProfile(w http.ResponseWriter, r *http.Request, id string) {
	admin, err := h.service.GetAdminProfile(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, admin)
}

// ChangePassword handles PUT /api/users/password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), claims.Principal(), service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "password changed, please sign in again"})
}

// CreateAdmin handles POST /api/users/admin
func (h *AuthHandler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req CreateAdminRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	admin, err := h.service.CreateAdmin(r.Context(), claims.Principal(), service.CreateAdminInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, admin)
}

func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := edgemw.ClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return nil, false
	}
	return claims, true
}
