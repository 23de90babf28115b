package http

import (
	"net/http"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterConfig carries everything NewRouter wires. Metrics is optional.
type RouterConfig struct {
	Attempts       *app.AttemptService
	Scoreboard     *app.ScoreboardService
	Feed           *app.ScoreboardFeed
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	JWTSecret      string
	HeaderIdentity bool
	AllowedOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", headerUserID, headerUserName)
		r.Use(cors.New(corsCfg))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	h := NewHandler(cfg.Attempts, cfg.Scoreboard, logger)
	stream := NewScoreboardStream(cfg.Scoreboard, cfg.Feed, cfg.AllowedOrigins, logger)

	public := r.Group("/api")
	public.GET("/scoreboard", h.rankedScoreboard)
	public.GET("/scoreboard/stats", h.scoreboardStats)
	r.GET("/ws/scoreboard", gin.WrapF(stream.ServeWS))

	api := r.Group("/api", Identity(cfg.JWTSecret, cfg.HeaderIdentity))
	api.GET("/quizzes", h.listQuizzes)
	api.POST("/quizzes/:quizId/attempts", h.startAttempt)
	api.GET("/quizzes/:quizId/history", h.quizHistory)
	api.GET("/attempts/:attemptId", h.getAttempt)
	api.POST("/attempts/:attemptId/submit", h.submitAttempt)
	api.GET("/attempts/:attemptId/results", h.attemptResults)
	api.GET("/my-attempts", h.myAttempts)
	api.POST("/users/register", h.registerUser)
	api.GET("/scoreboard/me", h.myRank)

	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
