// Package voting tallies votes for questions and answers and ranks answers.
// Everything here is a pure function of its inputs.
package voting

import "gator-overflow/internal/models"

// Tally is the derived, never persisted view of a vote list for one viewer.
//
// NetScore sums every direction as recorded. UpCount and DownCount only
// count well-formed +1 and -1 votes, so Difference and NetScore disagree
// whenever the list holds a malformed direction.
type Tally struct {
	NetScore    int  `json:"netScore"`
	UpCount     int  `json:"upCount"`
	DownCount   int  `json:"downCount"`
	CanVoteUp   bool `json:"canVoteUp"`
	CanVoteDown bool `json:"canVoteDown"`
}

// Difference is the count-difference score used to rank answers.
func (t Tally) Difference() int {
	return t.UpCount - t.DownCount
}

// Aggregate tallies votes as seen by viewer. A nil viewer never matches a
// voter, so anonymous callers stay eligible in both directions.
func Aggregate(votes []models.Vote, viewer *models.Identity) Tally {
	t := Tally{CanVoteUp: true, CanVoteDown: true}

	for _, vote := range votes {
		t.NetScore += int(vote.Direction)

		switch vote.Direction {
		case models.VoteUp:
			t.UpCount++
			if viewer.Same(vote.Voter) {
				t.CanVoteUp = false
			}
		case models.VoteDown:
			t.DownCount++
			if viewer.Same(vote.Voter) {
				t.CanVoteDown = false
			}
		}
	}

	return t
}
