package app

import (
	"math"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// ScoreAnswer is the binary, no-partial-credit rule: full points when the
// selection equals the frozen correct text, otherwise zero.
func ScoreAnswer(points int, correctText, selectedText string) (bool, int) {
	if selectedText == correctText {
		return true, points
	}
	return false, 0
}

// scoreRecords fills the outcome fields of every record from selections keyed
// by position and returns the total. Callers guarantee every position has a
// selection.
func scoreRecords(records []domain.AnswerRecord, selections map[int]string) int {
	total := 0
	for i := range records {
		selected := selections[records[i].Position]
		correct, earned := ScoreAnswer(records[i].Points, records[i].CorrectText, selected)
		records[i].SelectedText = &selected
		records[i].IsCorrect = &correct
		records[i].PointsEarned = &earned
		total += earned
	}
	return total
}

// matchSubmissions resolves each submitted answer to a snapshot position. It
// rejects unknown or repeated references before checking completeness, so a
// rejected submission never reaches the scoring step.
func matchSubmissions(records []domain.AnswerRecord, answers []domain.AnswerSubmission) (map[int]string, error) {
	byPosition := make(map[int]struct{}, len(records))
	byQuestion := make(map[string]int, len(records))
	for _, r := range records {
		byPosition[r.Position] = struct{}{}
		if r.QuestionID != "" {
			byQuestion[r.QuestionID] = r.Position
		}
	}

	selections := make(map[int]string, len(answers))
	var unknown, duplicate []int
	for _, a := range answers {
		position := a.Position
		if a.QuestionID != "" {
			p, ok := byQuestion[a.QuestionID]
			if !ok {
				return nil, &domain.InvalidAnswerReferenceError{QuestionID: a.QuestionID}
			}
			// both references given must name the same question
			if position != 0 && position != p {
				return nil, &domain.InvalidAnswerReferenceError{QuestionID: a.QuestionID, Positions: []int{position}}
			}
			position = p
		}
		if _, ok := byPosition[position]; !ok {
			unknown = append(unknown, position)
			continue
		}
		if _, seen := selections[position]; seen {
			duplicate = append(duplicate, position)
			continue
		}
		selections[position] = a.SelectedText
	}
	if len(unknown) > 0 {
		sort.Ints(unknown)
		return nil, &domain.InvalidAnswerReferenceError{Positions: unknown}
	}
	if len(duplicate) > 0 {
		sort.Ints(duplicate)
		return nil, &domain.InvalidAnswerReferenceError{Positions: duplicate, Duplicate: true}
	}

	var missing []int
	for _, r := range records {
		// an empty selection counts as unanswered
		if selections[r.Position] == "" {
			missing = append(missing, r.Position)
		}
	}
	if len(missing) > 0 {
		sort.Ints(missing)
		return nil, &domain.IncompleteSubmissionError{Missing: missing}
	}
	return selections, nil
}

func percentage(score, possible int) float64 {
	if possible <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(possible)*1000) / 10
}
