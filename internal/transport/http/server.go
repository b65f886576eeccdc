package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/auth"
	"github.com/majlischat/majlis-server/internal/blob"
	"github.com/majlischat/majlis-server/internal/config"
	"github.com/majlischat/majlis-server/internal/core"
	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

// NewServer builds the HTTP server: WebSocket gateway, upload endpoint,
// static attachment serving, and the admin REST surface.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, blobs *blob.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger)))

	uploads := NewUploadHandlers(blobs, hub, logger)
	router.POST("/upload", uploads.Upload)
	router.Static("/uploads", blobs.Dir())

	api := NewAPIHandlers(authService, hub, st, logger)
	router.POST("/api/login", api.Login)

	authed := router.Group("/api", AuthMiddleware(authService, logger))
	{
		authed.GET("/permissions", api.GetPermissions)
		authed.PUT("/permissions", api.UpdatePermissions)
		authed.GET("/bans", api.ListBans)

		accounts := authed.Group("/admins", RequireRole(perm.RoleOwner, perm.RoleSuperadmin))
		accounts.GET("", api.ListAdmins)
		accounts.POST("", api.CreateAdmin)
		accounts.DELETE("/:username", api.RemoveAdmin)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
