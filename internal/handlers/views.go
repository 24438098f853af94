package handlers

import (
	"net/http"

	"gator-overflow/internal/models"
	"gator-overflow/internal/voting"
)

// pageBase is what the shared header needs on every page.
type pageBase struct {
	Title    string
	Nickname string
	AuthURL  string
}

// voteBox feeds the "votes" fragment.
type voteBox struct {
	Action      string
	ID          string
	QuestionID  string
	Score       int
	CanVoteUp   bool
	CanVoteDown bool
}

type questionItem struct {
	voting.AnnotatedQuestion
	VoteBox voteBox
}

type answerItem struct {
	voting.RankedAnswer
	VoteBox    voteBox
	QuestionID string
	UploadURL  string
}

type indexPage struct {
	pageBase
	Questions []questionItem
	Cursor    string
}

type questionPage struct {
	pageBase
	Question  questionItem
	Answers   []answerItem
	Creator   bool
	UploadURL string
}

type loginPage struct {
	pageBase
	Action   string
	Continue string
	Error    string
}

// base fills in the header for r's viewer. Anonymous viewers get a login
// link back to the current page.
func (s *Server) base(r *http.Request, title string) pageBase {
	dest := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		dest = "/"
	}
	viewer := s.Auth.CurrentIdentity(r)
	if viewer == nil {
		return pageBase{Title: title, AuthURL: s.Auth.LoginURL(dest)}
	}
	return pageBase{Title: title, Nickname: viewer.Nickname, AuthURL: s.Auth.LogoutURL(dest)}
}

func questionItems(questions []voting.AnnotatedQuestion) []questionItem {
	items := make([]questionItem, len(questions))
	for i, q := range questions {
		items[i] = questionItem{
			AnnotatedQuestion: q,
			VoteBox: voteBox{
				Action:      "/questionvote",
				ID:          q.ID,
				Score:       q.Tally.NetScore,
				CanVoteUp:   q.Tally.CanVoteUp,
				CanVoteDown: q.Tally.CanVoteDown,
			},
		}
	}
	return items
}

func (s *Server) answerItem(questionID string, a voting.RankedAnswer) answerItem {
	return answerItem{
		RankedAnswer: a,
		VoteBox: voteBox{
			Action:      "/answervote",
			ID:          a.ID,
			QuestionID:  questionID,
			Score:       a.Score,
			CanVoteUp:   a.Tally.CanVoteUp,
			CanVoteDown: a.Tally.CanVoteDown,
		},
		QuestionID: questionID,
		UploadURL:  "/upload",
	}
}

// rankOne annotates a single fresh answer the same way the question page does.
func rankOne(a *models.Answer, viewer *models.Identity) voting.RankedAnswer {
	return voting.Rank([]models.Answer{*a}, viewer)[0]
}
