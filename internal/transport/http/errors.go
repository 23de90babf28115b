package http

import (
	"errors"
	"net/http"

	"quiz-attempt-service/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	MissingPositions []int  `json:"missingPositions,omitempty"`
	Positions        []int  `json:"positions,omitempty"`
	QuestionID       string `json:"questionId,omitempty"`
	Duplicate        bool   `json:"duplicate,omitempty"`
	Retryable        bool   `json:"retryable,omitempty"`
}

// writeError maps domain errors to status codes. Unknown errors are logged and
// reported as a retryable internal failure without their detail.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		incomplete *domain.IncompleteSubmissionError
		invalid    *domain.InvalidAnswerReferenceError
	)
	switch {
	case errors.As(err, &incomplete):
		c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error:            "incomplete_submission",
			Message:          err.Error(),
			MissingPositions: incomplete.Missing,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, errorBody{
			Error:      "invalid_answer_reference",
			Message:    err.Error(),
			Positions:  invalid.Positions,
			QuestionID: invalid.QuestionID,
			Duplicate:  invalid.Duplicate,
		})
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrUserScoreNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, domain.ErrAlreadySubmitted):
		c.JSON(http.StatusConflict, errorBody{Error: "already_submitted", Message: err.Error()})
	case errors.Is(err, domain.ErrNotSubmittedYet):
		c.JSON(http.StatusConflict, errorBody{Error: "not_submitted_yet", Message: err.Error()})
	case errors.Is(err, domain.ErrQuizNotPlayable):
		c.JSON(http.StatusUnprocessableEntity, errorBody{Error: "quiz_not_playable", Message: err.Error()})
	default:
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, errorBody{
			Error:     "internal",
			Message:   "internal error, please retry",
			Retryable: true,
		})
	}
}
