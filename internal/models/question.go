package models

import (
	"fmt"
	"time"
)

// Question is the root document. Answers, votes and image references are
// embedded and only ever appended to.
type Question struct {
	ID          string    `json:"id"`
	Owner       *Identity `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	Answers     []Answer  `json:"answers"`
	Votes       []Vote    `json:"votes"`
	Images      []string  `json:"images"`
	Version     int64     `json:"version"`
}

// FindAnswer returns a pointer into q.Answers so callers can append to the
// answer in place, or nil when no answer has the id.
func (q *Question) FindAnswer(id string) *Answer {
	for i := range q.Answers {
		if q.Answers[i].ID == id {
			return &q.Answers[i]
		}
	}
	return nil
}

// Touch stamps the last-modified time. Timestamps never go backwards, even
// when the wall clock does, so ordering by UpdatedAt follows write order.
func (q *Question) Touch(now time.Time) {
	q.UpdatedAt = nextTimestamp(q.UpdatedAt, now)
}

// Clone returns a deep copy so stores never hand out their own slices.
func (q *Question) Clone() *Question {
	if q == nil {
		return nil
	}
	c := *q
	c.Owner = q.Owner.Clone()
	c.Tags = append([]string(nil), q.Tags...)
	c.Votes = cloneVotes(q.Votes)
	c.Images = append([]string(nil), q.Images...)
	if q.Answers != nil {
		c.Answers = make([]Answer, len(q.Answers))
		for i, a := range q.Answers {
			c.Answers[i] = a.clone()
		}
	}
	return &c
}

func nextTimestamp(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// TimestampID renders t as seconds since the epoch with microsecond
// precision, the id format of questions and answers.
func TimestampID(t time.Time) string {
	micros := t.UnixMicro()
	return fmt.Sprintf("%d.%06d", micros/1e6, micros%1e6)
}
