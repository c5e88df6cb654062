package http

import (
	"github.com/gin-gonic/gin"

	"github.com/baliola/walletgate/core"
	"github.com/baliola/walletgate/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService) *gin.Engine {
	router := gin.Default()

	handlers := NewAuthHandlers(authService)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/authorize", handlers.Authorize)

		admin := api.Group("/admin")
		admin.Use(RequireRole(authService, core.RoleAdmin))
		{
			admin.GET("/status", handlers.AdminStatus)
		}
	}

	return router
}
