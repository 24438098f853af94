package models

import "time"

// Activity kinds pushed to question watchers.
const (
	ActivityAnswer = "answer"
	ActivityVote   = "vote"
	ActivityEdit   = "edit"
	ActivityImage  = "image"
)

// Activity describes one change to a question. It is broadcast to clients
// watching the question and never stored.
type Activity struct {
	Kind       string    `json:"kind"`
	QuestionID string    `json:"questionId"`
	AnswerID   string    `json:"answerId,omitempty"`
	NetScore   int       `json:"netScore"`
	At         time.Time `json:"at"`
}
