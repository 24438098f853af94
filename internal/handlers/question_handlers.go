package handlers

import (
	"net/http"
	"strings"

	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/voting"
)

// HandleIndex renders one page of the listing, newest update first.
func (s *Server) HandleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := s.Auth.CurrentIdentity(r)

		result, err := s.ask(&actors.ListQuestionsMsg{
			Viewer: viewer,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		listing := result.(*actors.QuestionListing)
		page := indexPage{
			pageBase:  s.base(r, "Questions"),
			Questions: questionItems(listing.Questions),
		}
		if listing.More {
			page.Cursor = listing.NextCursor
		}
		s.render(w, http.StatusOK, "index.html", page)
	}
}

// HandlePrepareQuestion renders the question-creation form.
func (s *Server) HandlePrepareQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, "addquestion.html", s.base(r, "Ask a question"))
	}
}

// HandleCreateQuestion creates a question from the form and returns to the listing.
func (s *Server) HandleCreateQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}

		_, err := s.ask(&actors.CreateQuestionMsg{
			Owner:       s.Auth.CurrentIdentity(r),
			Name:        r.PostForm.Get("title"),
			Description: r.PostForm.Get("description"),
			Tags:        r.PostForm["tags"],
		})
		if err != nil {
			writeError(w, err)
			return
		}

		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// HandleViewQuestion renders one question with its ranked answers.
func (s *Server) HandleViewQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}

		result, err := s.ask(&actors.GetQuestionMsg{QuestionID: id, Viewer: s.Auth.CurrentIdentity(r)})
		if err != nil {
			writeError(w, err)
			return
		}

		view := result.(*actors.QuestionView)
		page := questionPage{
			pageBase:  s.base(r, view.Question.Name),
			Question:  questionItems([]voting.AnnotatedQuestion{view.Question})[0],
			Creator:   view.Question.IsAuthor,
			UploadURL: "/upload",
		}
		for _, a := range view.Answers {
			page.Answers = append(page.Answers, s.answerItem(view.Question.ID, a))
		}
		s.render(w, http.StatusOK, "viewquestion.html", page)
	}
}

// HandleCreateAnswer appends an answer and renders it as a fragment for the
// question page to insert.
func (s *Server) HandleCreateAnswer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := r.PostFormValue("qid")
		if questionID == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}

		viewer := s.Auth.CurrentIdentity(r)
		result, err := s.ask(&actors.CreateAnswerMsg{
			QuestionID:  questionID,
			Owner:       viewer,
			Name:        r.PostFormValue("title"),
			Description: r.PostFormValue("description"),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		answer := result.(*models.Answer)
		s.render(w, http.StatusOK, "answer", s.answerItem(questionID, rankOne(answer, viewer)))
	}
}

// HandleEditQuestion replaces the title, description and tags of a question.
func (s *Server) HandleEditQuestion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}

		id := r.PostForm.Get("id")
		if id == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}

		_, err := s.ask(&actors.EditQuestionMsg{
			QuestionID:  id,
			Name:        r.PostForm.Get("title"),
			Description: r.PostForm.Get("description"),
			Tags:        r.PostForm["tags"],
		})
		if err != nil {
			writeError(w, err)
			return
		}

		http.Redirect(w, r, questionURL(id), http.StatusSeeOther)
	}
}

// HandleSearch renders the questions carrying exactly the given tag, or the
// default listing when the tag is empty.
func (s *Server) HandleSearch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.ask(&actors.SearchQuestionsMsg{
			Tag:    strings.TrimSpace(r.PostFormValue("tag")),
			Viewer: s.Auth.CurrentIdentity(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}

		listing := result.(*actors.QuestionListing)
		s.render(w, http.StatusOK, "questions", questionItems(listing.Questions))
	}
}

// parseDirection reads the vote direction, accepting only 1 and -1.
func parseDirection(r *http.Request) (models.VoteDirection, error) {
	switch strings.TrimSpace(r.PostFormValue("direction")) {
	case "1", "+1":
		return models.VoteUp, nil
	case "-1":
		return models.VoteDown, nil
	default:
		return 0, utils.NewInvalidInputError("direction must be 1 or -1")
	}
}
