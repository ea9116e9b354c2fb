package review

import "strings"

// Scorer computes a sycophancy score in [0,1] for a VoteSet. Higher means the
// agreement looks driven by conformity rather than independent assessment.
// Implementations must be deterministic for a given VoteSet and degrade to a
// default score instead of failing on malformed input. The scorer is an
// isolated, replaceable stage: swap it without touching the orchestrator.
type Scorer interface {
	Score(votes VoteSet) (float64, error)
}

// HeuristicScorer is the default scoring strategy. On unanimous approval it
// blends three signals:
//
//   - a unanimity prior (everyone agreeing is itself weak evidence),
//   - the fraction of approvals that still list material issues (approving
//     despite blocker findings is the classic conformity tell),
//   - reasoning echo: mean pairwise word-set overlap between reasonings,
//     with blank reasoning counted as full echo (no distinguishing critical
//     content).
//
// Non-unanimous sets score strictly below 0.5, so they can never cross the
// default escalation threshold.
type HeuristicScorer struct{}

// Compile-time check
var _ Scorer = (*HeuristicScorer)(nil)

// Score implements Scorer.
func (s *HeuristicScorer) Score(votes VoteSet) (float64, error) {
	n := len(votes)
	if n == 0 {
		return 0, nil
	}

	approvals := 0
	for _, v := range votes {
		if NormalizeVerdict(string(v.Verdict)) == VerdictApprove {
			approvals++
		}
	}

	echo := reasoningEcho(votes)

	if approvals < n {
		// Disagreement is present; residual echo among a partial majority
		// stays well under the escalation range.
		return clamp01(0.45 * echo * float64(approvals) / float64(n)), nil
	}

	issueSignal := materialIssueFraction(votes)
	return clamp01(0.2 + 0.4*issueSignal + 0.4*echo), nil
}

// materialIssueFraction is the share of votes approving while listing at
// least one material issue.
func materialIssueFraction(votes VoteSet) float64 {
	if len(votes) == 0 {
		return 0
	}
	suspicious := 0
	for _, v := range votes {
		if NormalizeVerdict(string(v.Verdict)) != VerdictApprove {
			continue
		}
		for _, issue := range v.Issues {
			if issue.Material() {
				suspicious++
				break
			}
		}
	}
	return float64(suspicious) / float64(len(votes))
}

// reasoningEcho measures how interchangeable the reviewers' reasonings are:
// the mean pairwise Jaccard similarity of their word sets. Empty reasoning is
// treated as fully echoing (similarity 1 against everything).
func reasoningEcho(votes VoteSet) float64 {
	if len(votes) == 1 {
		if len(reasoningWords(votes[0].Reasoning)) == 0 {
			return 1
		}
		return 0
	}

	sets := make([]map[string]struct{}, len(votes))
	for i, v := range votes {
		sets[i] = reasoningWords(v.Reasoning)
	}

	var total float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func reasoningWords(reasoning string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(reasoning))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if len(w) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		// No distinguishing content on at least one side.
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
