package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/utils"
)

// sniffLen is how much of an upload http.DetectContentType looks at.
const sniffLen = 512

// HandleUpload stores one uploaded image and attaches its reference to
// question `qid`, or to answer `aid` of that question.
func (s *Server) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tooLargeErr := utils.NewAppError(utils.ErrPayloadTooLarge, "Upload exceeds "+strconv.FormatInt(s.MaxUploadBytes, 10)+" bytes", nil)
		if r.ContentLength > s.MaxUploadBytes {
			writeError(w, tooLargeErr)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, tooLargeErr)
				return
			}
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		questionID := r.FormValue("qid")
		answerID := r.FormValue("aid")
		if questionID == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "File is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		// Refuse uploads for a missing question or answer before storing anything.
		result, err := s.ask(&actors.GetQuestionMsg{QuestionID: questionID})
		if err != nil {
			writeError(w, err)
			return
		}
		if answerID != "" && !hasAnswer(result.(*actors.QuestionView), answerID) {
			writeError(w, utils.NewAnswerNotFoundError(answerID))
			return
		}

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(file, head)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			http.Error(w, "Failed to read upload", http.StatusBadRequest)
			return
		}
		head = head[:n]

		contentType := http.DetectContentType(head)
		if !strings.HasPrefix(contentType, "image/") {
			writeError(w, utils.NewInvalidInputError("only images can be uploaded, got "+contentType))
			return
		}

		ref, err := s.Images.SaveImage(r.Context(), io.MultiReader(bytes.NewReader(head), file), header.Filename, contentType)
		if err != nil {
			writeError(w, err)
			return
		}

		if _, err := s.ask(&actors.AttachImageMsg{QuestionID: questionID, AnswerID: answerID, Ref: ref}); err != nil {
			log.Printf("Image %s stored but not attached to question %s: %v", ref, questionID, err)
			writeError(w, err)
			return
		}

		http.Redirect(w, r, questionURL(questionID), http.StatusSeeOther)
	}
}

func hasAnswer(view *actors.QuestionView, answerID string) bool {
	for _, a := range view.Answers {
		if a.ID == answerID {
			return true
		}
	}
	return false
}

// HandleServeImage streams a stored image by reference.
func (s *Server) HandleServeImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := r.PathValue("resource")

		img, err := s.Images.OpenImage(r.Context(), ref)
		if err != nil {
			writeError(w, err)
			return
		}
		defer img.Content.Close()

		w.Header().Set("Content-Type", img.ContentType)
		if img.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(img.Size, 10))
		}
		// References never change content.
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if _, err := io.Copy(w, img.Content); err != nil {
			log.Printf("Failed to stream image %s: %v", ref, err)
		}
	}
}
