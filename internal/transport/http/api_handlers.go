package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

// APIHandlers provides HTTP handlers for the admin REST surface.
type APIHandlers struct {
	authService *auth.Service
	hub         *core.Hub
	store       store.Store
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, hub *core.Hub, st store.Store, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		hub:         hub,
		store:       st,
		log:         logger,
	}
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// CreateAdminRequest represents the admin creation request body.
type CreateAdminRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

// AdminResponse is the public view of an admin account.
type AdminResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// BanResponse is one ban registry entry.
type BanResponse struct {
	Addr      string    `json:"addr,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	BannedBy  string    `json:"banned_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PermissionsResponse carries the role -> actions matrix.
type PermissionsResponse struct {
	Permissions map[string][]string `json:"permissions"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Login handles admin login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, acc, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login admin")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("username", req.Username).Str("role", string(acc.Role)).Msg("admin logged in")
	c.JSON(http.StatusOK, AuthResponse{Token: token, Role: string(acc.Role)})
}

// GetPermissions returns the live capability matrix.
// GET /api/permissions
func (h *APIHandlers) GetPermissions(c *gin.Context) {
	matrix, err := h.hub.Permissions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, PermissionsResponse{Permissions: matrixToWire(matrix)})
}

// UpdatePermissions replaces the capability matrix wholesale. The hub
// enforces the edit-permissions capability for the caller's role.
// PUT /api/permissions
func (h *APIHandlers) UpdatePermissions(c *gin.Context) {
	var req PermissionsResponse
	if err := c.ShouldBindJSON(&req); err != nil || req.Permissions == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.hub.UpdatePermissions(c.Request.Context(), claimedRole(c), matrixFromWire(req.Permissions))
	if err != nil {
		var cerr *core.CoreError
		if errors.As(err, &cerr) {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: cerr.Message})
			return
		}
		h.log.Error().Err(err).Msg("failed to update permissions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("by", c.GetString(ContextKeyUsername)).Msg("permission matrix replaced via rest")
	c.Status(http.StatusNoContent)
}

// ListBans returns the live ban registry.
// GET /api/bans
func (h *APIHandlers) ListBans(c *gin.Context) {
	bans, err := h.hub.Bans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]BanResponse, 0, len(bans))
	for _, b := range bans {
		out = append(out, BanResponse{
			Addr:      b.Addr,
			DeviceID:  b.DeviceID,
			Reason:    b.Reason,
			BannedBy:  b.BannedBy,
			CreatedAt: b.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"bans": out})
}

// ListAdmins lists the admin accounts.
// GET /api/admins
func (h *APIHandlers) ListAdmins(c *gin.Context) {
	admins, err := h.store.ListAdmins(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list admins")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]AdminResponse, 0, len(admins))
	for _, a := range admins {
		out = append(out, AdminResponse{Username: a.Username, Role: string(a.Role), CreatedAt: a.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"admins": out})
}

// CreateAdmin registers a new admin account.
// POST /api/admins
func (h *APIHandlers) CreateAdmin(c *gin.Context) {
	var req CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	acc, err := h.authService.CreateAdmin(c.Request.Context(), req.Username, req.Password, perm.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAdminExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "admin already exists"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword), errors.Is(err, auth.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Str("username", req.Username).Msg("failed to create admin")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("by", c.GetString(ContextKeyUsername)).Str("username", acc.Username).Str("role", string(acc.Role)).Msg("admin created")
	c.JSON(http.StatusCreated, AdminResponse{Username: acc.Username, Role: string(acc.Role), CreatedAt: acc.CreatedAt})
}

// RemoveAdmin deletes an admin account. Owner accounts can only be
// removed by another owner, and never by themselves.
// DELETE /api/admins/:username
func (h *APIHandlers) RemoveAdmin(c *gin.Context) {
	username := c.Param("username")
	if username == c.GetString(ContextKeyUsername) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot remove your own account"})
		return
	}

	target, err := h.store.GetAdminByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no such admin"})
			return
		}
		h.log.Error().Err(err).Str("username", username).Msg("failed to look up admin")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if target.Role == perm.RoleOwner && claimedRole(c) != perm.RoleOwner {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only an owner may remove an owner account"})
		return
	}

	if err := h.store.RemoveAdmin(c.Request.Context(), username); err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("failed to remove admin")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("by", c.GetString(ContextKeyUsername)).Str("username", username).Msg("admin removed")
	c.Status(http.StatusNoContent)
}
