package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/learnly/prepexam-backend/internal/config"
	"github.com/learnly/prepexam-backend/internal/handler"
	"github.com/learnly/prepexam-backend/internal/middleware"
	"github.com/learnly/prepexam-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	Preview *handler.PreviewHandler
	Consent *handler.ConsentHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Every route below is visitor-scoped: the cookie token keys sessions,
	// preview budget and consent. Auth is optional everywhere; a valid
	// bearer token only lifts the preview limit.
	router.Use(middleware.VisitorToken())
	router.Use(middleware.OptionalAuth(cfg.JWTSecret))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for session starts (per IP, per minute).
	startLimiter := middleware.NewRateLimiter(cfg.SessionStartRate, time.Minute)

	// ─── 1. Exam Catalog (Public) ──────────────────────────────────────
	api := router.Group("/api/v1")
	{
		api.GET("/exams", handlers.Exam.ListExams)
		api.GET("/exams/:exam_id", handlers.Exam.GetExam)
	}

	// ─── 2. Session Lifecycle ──────────────────────────────────────────
	session := api.Group("/exams/:exam_id/session")
	{
		session.POST("", startLimiter.Middleware(), handlers.Session.StartSession)
		session.GET("", handlers.Session.GetState)
		session.DELETE("", handlers.Session.CloseSession)
		session.POST("/answer", handlers.Session.SubmitAnswer)
		session.POST("/advance", handlers.Session.Advance)
		session.POST("/back", handlers.Session.GoBack)
		session.POST("/finish", handlers.Session.Finish)
	}

	// ─── 3. Preview Budget & Consent ───────────────────────────────────
	{
		api.GET("/preview", handlers.Preview.GetPreview)
		api.DELETE("/preview", handlers.Preview.ResetPreview)
		api.GET("/consent", handlers.Consent.GetConsent)
		api.PUT("/consent", handlers.Consent.UpdateConsent)
	}

	// ─── 4. WebSocket Stream ───────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.SessionStream)
	}

	return router
}
