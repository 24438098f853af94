package handlers

import (
	"encoding/json"
	"net/http"

	"gator-overflow/internal/api"
	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/voting"
)

// HandleQuestionVote appends a vote to question `id` and returns the
// question's sum-based tally.
func (s *Server) HandleQuestionVote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PostFormValue("id")
		if id == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}
		direction, err := parseDirection(r)
		if err != nil {
			writeError(w, err)
			return
		}

		result, err := s.ask(&actors.VoteQuestionMsg{
			QuestionID: id,
			Voter:      s.Auth.CurrentIdentity(r),
			Direction:  direction,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		tally := result.(voting.Tally)
		writeVote(w, tally, tally.NetScore)
	}
}

// HandleAnswerVote appends a vote to answer `id` of question `qid` and
// returns the answer's count-difference tally.
func (s *Server) HandleAnswerVote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := r.PostFormValue("qid")
		answerID := r.PostFormValue("id")
		if questionID == "" || answerID == "" {
			http.Error(w, "Question ID and answer ID are required", http.StatusBadRequest)
			return
		}
		direction, err := parseDirection(r)
		if err != nil {
			writeError(w, err)
			return
		}

		result, err := s.ask(&actors.VoteAnswerMsg{
			QuestionID: questionID,
			AnswerID:   answerID,
			Voter:      s.Auth.CurrentIdentity(r),
			Direction:  direction,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		tally := result.(voting.Tally)
		writeVote(w, tally, tally.Difference())
	}
}

func writeVote(w http.ResponseWriter, tally voting.Tally, score int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(api.VoteResponse{
		Score:       score,
		NetScore:    tally.NetScore,
		UpCount:     tally.UpCount,
		DownCount:   tally.DownCount,
		CanVoteUp:   tally.CanVoteUp,
		CanVoteDown: tally.CanVoteDown,
	})
}
