package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz does not (or no longer) exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizNotPlayable is returned when a quiz has no questions to snapshot
	// or a question carries no points.
	ErrQuizNotPlayable = errors.New("quiz is not playable")
	// ErrAttemptNotFound indicates the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrForbidden is returned when the caller does not own the attempt.
	ErrForbidden = errors.New("attempt belongs to another user")
	// ErrAlreadySubmitted is returned for any action that requires an in-progress attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrNotSubmittedYet is returned when results are requested for an in-progress attempt.
	ErrNotSubmittedYet = errors.New("attempt not submitted yet")
	// ErrIncompleteSubmission indicates some questions were left unanswered.
	ErrIncompleteSubmission = errors.New("submission does not answer every question")
	// ErrInvalidAnswerReference indicates an answer names a question outside the attempt.
	ErrInvalidAnswerReference = errors.New("answer references a question outside the attempt")
	// ErrUserScoreNotFound indicates the user has no scoreboard entry.
	ErrUserScoreNotFound = errors.New("user has no score record")
)

// IncompleteSubmissionError lists the snapshot positions that were not answered.
type IncompleteSubmissionError struct {
	Missing []int
}

func (e *IncompleteSubmissionError) Error() string {
	return fmt.Sprintf("%s: missing positions %s", ErrIncompleteSubmission, joinPositions(e.Missing))
}

func (e *IncompleteSubmissionError) Is(target error) bool {
	return target == ErrIncompleteSubmission
}

// InvalidAnswerReferenceError lists offending positions (unknown or duplicated).
// QuestionID names an unknown question, or one submitted at the wrong position
// when Positions is also set.
type InvalidAnswerReferenceError struct {
	Positions  []int
	QuestionID string
	Duplicate  bool
}

func (e *InvalidAnswerReferenceError) Error() string {
	if e.QuestionID != "" && len(e.Positions) > 0 {
		return fmt.Sprintf("%s: question %s is not at position %s", ErrInvalidAnswerReference, e.QuestionID, joinPositions(e.Positions))
	}
	if e.QuestionID != "" {
		return fmt.Sprintf("%s: question %s", ErrInvalidAnswerReference, e.QuestionID)
	}
	if e.Duplicate {
		return fmt.Sprintf("%s: duplicate positions %s", ErrInvalidAnswerReference, joinPositions(e.Positions))
	}
	return fmt.Sprintf("%s: positions %s", ErrInvalidAnswerReference, joinPositions(e.Positions))
}

func (e *InvalidAnswerReferenceError) Is(target error) bool {
	return target == ErrInvalidAnswerReference
}

func joinPositions(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
