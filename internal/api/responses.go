package api

import (
	"time"

	"gator-overflow/internal/utils"
)

type LoginResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token,omitempty"`
	Error    string `json:"error,omitempty"`
	UserID   string `json:"userId"`
	Nickname string `json:"nickname,omitempty"`
}

// VoteResponse is the tally after a vote. Score is the net score for
// questions and the up/down difference for answers.
type VoteResponse struct {
	Score       int  `json:"score"`
	NetScore    int  `json:"netScore"`
	UpCount     int  `json:"upCount"`
	DownCount   int  `json:"downCount"`
	CanVoteUp   bool `json:"canVoteUp"`
	CanVoteDown bool `json:"canVoteDown"`
}

type HealthResponse struct {
	Status     string                `json:"status"`
	Questions  int                   `json:"questions"`
	Answers    int                   `json:"answers"`
	Votes      int                   `json:"votes"`
	Images     int                   `json:"images"`
	Watchers   int                   `json:"watchers"`
	Metrics    utils.MetricsSnapshot `json:"metrics"`
	ServerTime time.Time             `json:"server_time"`
}
