package models

import "time"

// Answer lives only inside its parent Question's answer list.
type Answer struct {
	ID          string    `json:"id"`
	Owner       *Identity `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Votes       []Vote    `json:"votes"`
	Images      []string  `json:"images"`
}

// Touch stamps the answer's last-modified time.
func (a *Answer) Touch(now time.Time) {
	a.UpdatedAt = nextTimestamp(a.UpdatedAt, now)
}

func (a Answer) clone() Answer {
	a.Owner = a.Owner.Clone()
	a.Votes = cloneVotes(a.Votes)
	a.Images = append([]string(nil), a.Images...)
	return a
}
