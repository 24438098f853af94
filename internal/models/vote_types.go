package models

// VoteDirection is the signed weight of a single vote.
type VoteDirection int

const (
	VoteUp   VoteDirection = 1
	VoteDown VoteDirection = -1
)

// Valid reports whether d is one of the two accepted directions.
func (d VoteDirection) Valid() bool {
	return d == VoteUp || d == VoteDown
}

// Vote is append-only. A nil Voter is an anonymous vote.
type Vote struct {
	Direction VoteDirection `json:"direction"`
	Voter     *Identity     `json:"voter,omitempty"`
}

func cloneVotes(votes []Vote) []Vote {
	if votes == nil {
		return nil
	}
	out := make([]Vote, len(votes))
	for i, v := range votes {
		out[i] = Vote{Direction: v.Direction, Voter: v.Voter.Clone()}
	}
	return out
}
