package voting

import (
	"sort"

	"gator-overflow/internal/models"
)

// RankedAnswer is an answer annotated for one viewer.
type RankedAnswer struct {
	models.Answer
	Tally    Tally
	Score    int
	IsAuthor bool
}

// Rank annotates answers for viewer and orders them by ascending
// count-difference score. Ties keep their insertion order.
func Rank(answers []models.Answer, viewer *models.Identity) []RankedAnswer {
	ranked := make([]RankedAnswer, len(answers))
	for i, answer := range answers {
		tally := Aggregate(answer.Votes, viewer)
		ranked[i] = RankedAnswer{
			Answer:   answer,
			Tally:    tally,
			Score:    tally.Difference(),
			IsAuthor: viewer.Same(answer.Owner),
		}
	}

	// Lowest score first.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score < ranked[j].Score
	})
	return ranked
}

// AnnotatedQuestion is a question annotated for one viewer using the
// sum-based net score.
type AnnotatedQuestion struct {
	*models.Question
	Tally    Tally
	IsAuthor bool
}

// AnnotateQuestion computes the sum-mode tally and the author flag of q.
func AnnotateQuestion(q *models.Question, viewer *models.Identity) AnnotatedQuestion {
	return AnnotatedQuestion{
		Question: q,
		Tally:    Aggregate(q.Votes, viewer),
		IsAuthor: viewer.Same(q.Owner),
	}
}

// AnnotateQuestions is shared by the listing and the search pages so both
// render identical scores for identical data.
func AnnotateQuestions(questions []*models.Question, viewer *models.Identity) []AnnotatedQuestion {
	out := make([]AnnotatedQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, AnnotateQuestion(q, viewer))
	}
	return out
}
