package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moments/handlers"
	"moments/logger"
	"moments/media"
	"moments/metrics"
	"moments/middleware"
	"moments/services"
	"moments/websocket"
)

// Deps are the collaborators the router wires. Uploader, Hub and Metrics
// are optional.
type Deps struct {
	Log            *zap.Logger
	Tokens         middleware.TokenParser
	Posts          *services.PostService
	Auth           *services.AuthService
	Admin          *services.AdminService
	Uploader       media.Uploader
	Hub            *websocket.Hub
	Metrics        *metrics.Metrics
	AuthLimiter    *middleware.IPRateLimiter
	AllowedOrigins []string
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return cfg
}

func SetupRouter(d Deps) *gin.Engine {
	handlers.RegisterValidators()

	router := gin.New()
	router.Use(middleware.RequestID(), logger.GinMiddleware(d.Log), logger.Recovery(d.Log))
	if d.Metrics != nil {
		router.Use(d.Metrics.GinMiddleware())
	}
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))

	var rec handlers.Recorder
	if d.Metrics != nil {
		rec = d.Metrics
	}
	posts := handlers.NewPostHandler(d.Posts, rec)
	authH := handlers.NewAuthHandler(d.Auth)
	admin := handlers.NewAdminHandler(d.Admin)
	upload := handlers.NewUploadHandler(d.Uploader)

	requireUser := middleware.JWTAuthMiddleware(d.Tokens)
	requireAdmin := middleware.RequireAdmin()

	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"status":  "ok",
			"message": "MOMENTS & ME API is running",
			"time":    time.Now().Unix(),
		})
	})

	// Public reads
	api.GET("/posts", posts.ListPosts)
	api.GET("/posts/suggestions", posts.Suggestions)
	api.GET("/posts/:id", posts.GetPost)
	api.GET("/posts/:id/comments", posts.ListComments)

	// Auth
	authGroup := api.Group("/auth")
	limited := authGroup.Group("")
	if d.AuthLimiter != nil {
		limited.Use(d.AuthLimiter.Middleware())
	}
	limited.POST("/signup", authH.Signup)
	limited.POST("/login", authH.Login)
	limited.POST("/forgot-password", authH.ForgotPassword)
	limited.POST("/verify-otp", authH.VerifyOTP)
	limited.POST("/reset-password", authH.ResetPassword)
	authGroup.GET("/me", requireUser, authH.Me)

	// Signed-in readers
	user := api.Group("")
	user.Use(requireUser)
	user.POST("/posts/:id/like", posts.ToggleLike)
	user.GET("/posts/:id/like", posts.LikeStatus)
	user.POST("/posts/:id/comments", posts.AddComment)
	user.PUT("/posts/:id/comments/:commentId", posts.EditComment)
	user.DELETE("/posts/:id/comments/:commentId", posts.DeleteComment)

	// Admin
	adminGroup := api.Group("")
	adminGroup.Use(requireUser, requireAdmin)
	adminGroup.POST("/posts", posts.CreatePost)
	adminGroup.PUT("/posts/:id", posts.UpdatePost)
	adminGroup.DELETE("/posts/:id", posts.DeletePost)
	adminGroup.POST("/upload", upload.Upload)
	adminGroup.GET("/admin/stats", admin.Stats)
	adminGroup.GET("/admin/users", admin.Users)
	adminGroup.GET("/admin/comments", admin.RecentComments)

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.Hub != nil {
		router.GET("/ws", gin.WrapF(d.Hub.ServeWS))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"code":    "NOT_FOUND",
				"message": "Endpoint not found: " + c.Request.URL.Path,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "code": "NOT_FOUND", "message": "Not found"})
	})

	return router
}
