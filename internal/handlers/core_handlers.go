package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"gator-overflow/internal/api"
	"gator-overflow/internal/engine/actors"
)

// HandleHealth handles health check requests
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Get the write counts from QuestionActor
		result, err := s.ask(&actors.GetCountsMsg{})
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		counts := result.(actors.Counts)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.HealthResponse{
			Status:     "healthy",
			Questions:  counts.Questions,
			Answers:    counts.Answers,
			Votes:      counts.Votes,
			Images:     counts.Images,
			Watchers:   s.Hub.ClientCount(),
			Metrics:    s.Metrics.Snapshot(),
			ServerTime: time.Now(),
		})
	}
}
