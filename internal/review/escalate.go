package review

// ShouldEscalate reports whether the anti-sycophancy audit fires: only on
// unanimous approval with a sycophancy score at or above the threshold. It
// never fires on non-unanimous or already-rejecting rounds.
func ShouldEscalate(t Tally, councilSize int, score, threshold float64) bool {
	return t.Approve == councilSize && score >= threshold
}

// ApplyEscalation folds the adversarial vote into the tally. A rejecting
// adversarial verdict flips exactly one vote (-1 approve, +1 reject) and
// marks the round overturned; anything else confirms the approval and leaves
// the counts unchanged. The vote itself stays an explicitly flagged addition
// outside the base VoteSet.
func ApplyEscalation(t Tally, adversarial Vote) (Tally, Escalation) {
	esc := Escalation{Vote: adversarial, Outcome: OutcomeConfirmed}
	if NormalizeVerdict(string(adversarial.Verdict)) != VerdictApprove {
		t.Approve--
		t.Reject++
		esc.Outcome = OutcomeOverturned
	}
	return t, esc
}
