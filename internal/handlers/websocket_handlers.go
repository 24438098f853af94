package handlers

import (
	"log"
	"net/http"
	"net/url"

	"gator-overflow/internal/engine/actors"
	"gator-overflow/internal/middleware"
	"gator-overflow/internal/websocket"

	ws "github.com/gorilla/websocket"
)

// checkOrigin accepts same-host pages and the configured allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	return middleware.DefaultCORSConfig(s.AllowedOrigins).Allows(origin)
}

// HandleWebSocket subscribes the caller to live activity on question `qid`.
// Anonymous viewers may watch too.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		questionID := r.URL.Query().Get("qid")
		if questionID == "" {
			http.Error(w, "Question ID is required", http.StatusBadRequest)
			return
		}

		// 1. Make sure there is something to watch
		if _, err := s.ask(&actors.GetQuestionMsg{QuestionID: questionID}); err != nil {
			writeError(w, err)
			return
		}

		// 2. Upgrade connection
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for question %s: %v", questionID, err)
			// Note: Cannot write HTTP error after successful upgrade attempt
			return
		}

		// 3. Create and register the client
		client := websocket.NewClient(s.Hub, conn, questionID, s.Auth.CurrentIdentity(r))
		if !s.Hub.Join(client) {
			conn.Close()
			return
		}

		// 4. Start read and write pumps
		go client.WritePump()
		go client.ReadPump()
	}
}
