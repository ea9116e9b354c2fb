package review

// Tally holds the approve/reject counts for one round. Every council slot
// contributes exactly one vote, so Approve+Reject always equals the council
// size.
type Tally struct {
	Approve int
	Reject  int
}

// Total returns the number of counted votes.
func (t Tally) Total() int {
	return t.Approve + t.Reject
}

// TallyVotes counts verdicts. No weighting by role: every vote counts once.
func TallyVotes(votes VoteSet) Tally {
	var t Tally
	for _, vote := range votes {
		if NormalizeVerdict(string(vote.Verdict)) == VerdictApprove {
			t.Approve++
		} else {
			t.Reject++
		}
	}
	return t
}

// DecideFromTally computes the decision for a tally against the approval
// threshold: approve iff the approve count meets the threshold.
func DecideFromTally(t Tally, approvalThreshold int) string {
	if t.Approve >= approvalThreshold {
		return DecisionApprove
	}
	return DecisionReject
}
