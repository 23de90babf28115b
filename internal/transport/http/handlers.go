package http

import (
	"net/http"
	"strconv"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the attempt and scoreboard use cases over REST.
type Handler struct {
	attempts   *app.AttemptService
	scoreboard *app.ScoreboardService
	logger     *zap.Logger
}

func NewHandler(attempts *app.AttemptService, scoreboard *app.ScoreboardService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{attempts: attempts, scoreboard: scoreboard, logger: logger}
}

type submitRequest struct {
	Answers []domain.AnswerSubmission `json:"answers" binding:"required"`
}

type registerRequest struct {
	DisplayName string `json:"displayName"`
}

func (h *Handler) listQuizzes(c *gin.Context) {
	p := currentPrincipal(c)
	quizzes, err := h.attempts.BrowseQuizzes(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": quizzes})
}

func (h *Handler) startAttempt(c *gin.Context) {
	p := currentPrincipal(c)
	view, err := h.attempts.StartAttempt(c.Request.Context(), p.UserID, p.DisplayName, c.Param("quizId"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) quizHistory(c *gin.Context) {
	p := currentPrincipal(c)
	quizID := c.Param("quizId")
	items, err := h.attempts.GetQuizHistory(c.Request.Context(), p.UserID, quizID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizId": quizID, "attempts": items})
}

func (h *Handler) getAttempt(c *gin.Context) {
	p := currentPrincipal(c)
	view, err := h.attempts.ResumeAttempt(c.Request.Context(), c.Param("attemptId"), p.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) submitAttempt(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "body must be {\"answers\": [...]}"})
		return
	}
	p := currentPrincipal(c)
	result, err := h.attempts.Submit(c.Request.Context(), c.Param("attemptId"), p.UserID, req.Answers)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) attemptResults(c *gin.Context) {
	p := currentPrincipal(c)
	result, err := h.attempts.GetResults(c.Request.Context(), c.Param("attemptId"), p.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) myAttempts(c *gin.Context) {
	p := currentPrincipal(c)
	list, err := h.attempts.ListMyAttempts(c.Request.Context(), p.UserID, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) registerUser(c *gin.Context) {
	var req registerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid JSON body"})
			return
		}
	}
	p := currentPrincipal(c)
	name := req.DisplayName
	if name == "" {
		name = p.DisplayName
	}
	entry, err := h.scoreboard.RegisterUser(c.Request.Context(), p.UserID, name)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": entry.UserID, "displayName": entry.DisplayName})
}

func (h *Handler) rankedScoreboard(c *gin.Context) {
	page, err := h.scoreboard.GetRanked(c.Request.Context(), queryInt(c, "page"), queryInt(c, "pageSize"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) scoreboardStats(c *gin.Context) {
	stats, err := h.scoreboard.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) myRank(c *gin.Context) {
	p := currentPrincipal(c)
	rank, err := h.scoreboard.GetUserRank(c.Request.Context(), p.UserID, queryInt(c, "pageSize"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rank)
}

// queryInt returns 0 for a missing or malformed parameter; services treat
// that as "use the default".
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
