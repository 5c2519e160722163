// api/router.go
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/vertabase/verta-backend/api/handlers"
	"github.com/vertabase/verta-backend/api/middleware"
	"github.com/vertabase/verta-backend/config"
	"github.com/vertabase/verta-backend/internal/auth"
	"github.com/vertabase/verta-backend/internal/service"
)

// SetupRouter initializes the Gin router and sets up all routes.
func SetupRouter(cfg *config.Config, manager *auth.Manager, svc *service.CollectionService) *gin.Engine {
	router := gin.Default() // Includes Logger and Recovery

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	// Setting up a rate-limiter
	ratelimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	router.Use(middleware.RateLimitMiddleware(ratelimiter))
	// It should run after basic middleware like Logger/Recovery
	// but before the routing happens, so it wraps the handlers.
	router.Use(middleware.ErrorHandler())

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(manager)
	collectionHandler := handlers.NewCollectionHandler(svc)
	recordHandler := handlers.NewRecordHandler(svc)

	// --- Public Routes ---
	router.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh", authHandler.Refresh)
		authRoutes.POST("/logout", authHandler.Logout)
	}

	authedRoutes := router.Group("/auth")
	authedRoutes.Use(middleware.RequireAuth(manager))
	{
		authedRoutes.POST("/logout-all", authHandler.LogoutAll)
		authedRoutes.GET("/me", authHandler.Me)
		authedRoutes.PATCH("/me", authHandler.UpdateMe)
		authedRoutes.POST("/change-password", authHandler.ChangePassword)
	}

	// --- Collection Administration (admin gated in the service layer) ---
	collectionRoutes := router.Group("/api/collections")
	collectionRoutes.Use(middleware.RequireAuth(manager))
	{
		collectionRoutes.GET("", collectionHandler.ListCollections)
		collectionRoutes.POST("", collectionHandler.CreateCollection)
		collectionRoutes.GET("/:collection", collectionHandler.GetCollection)
		collectionRoutes.PATCH("/:collection", collectionHandler.UpdateCollection)
		collectionRoutes.DELETE("/:collection", collectionHandler.DeleteCollection)
	}

	// --- Record Routes ---
	// Anonymous requests are allowed through; each collection's rules
	// decide per operation.
	recordRoutes := router.Group("/api/collections/:collection/records")
	recordRoutes.Use(middleware.OptionalAuth(manager))
	{
		recordRoutes.GET("", recordHandler.ListRecords)
		recordRoutes.POST("", recordHandler.CreateRecord)
		recordRoutes.GET("/:id", recordHandler.GetRecord)
		recordRoutes.PATCH("/:id", recordHandler.UpdateRecord)
		recordRoutes.DELETE("/:id", recordHandler.DeleteRecord)
	}

	return router
}
