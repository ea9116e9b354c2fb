package review

import "fmt"

// Role identifies the fixed prompt template a reviewer runs with.
type Role string

const (
	RoleRequirementsVerifier Role = "requirements_verifier"
	RoleTestAuditor          Role = "test_auditor"
	RoleCodeQuality          Role = "code_quality_reviewer"
	RoleDevilsAdvocate       Role = "devils_advocate"
	RoleGeneric              Role = "generic"
)

// RoleForSlot returns the deterministic role assignment for a council slot:
// slot 0 verifies requirements, slot 1 audits tests, everything above reviews
// code quality.
func RoleForSlot(slot int) Role {
	switch slot {
	case 0:
		return RoleRequirementsVerifier
	case 1:
		return RoleTestAuditor
	default:
		return RoleCodeQuality
	}
}

// ReviewerID builds the stable reviewer identity for a role and council slot.
// Identities are deterministic so calibration history is longitudinal across
// rounds.
func ReviewerID(role Role, slot int) string {
	return fmt.Sprintf("%s:%d", role, slot)
}

// Verdict is a reviewer's judgment. Anything that does not normalize to
// approve counts as a rejection.
type Verdict string

const (
	VerdictApprove Verdict = "APPROVE"
	VerdictReject  Verdict = "REJECT"
)

// Issue is a single finding listed by a reviewer.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Material reports whether the issue severity indicates a finding that should
// normally block approval.
func (i Issue) Material() bool {
	switch i.Severity {
	case "critical", "major", "high", "blocker":
		return true
	default:
		return false
	}
}

// Vote is one reviewer's complete verdict for a round. Synthetic marks the
// canonical failure vote substituted for a crashed, timed-out, or
// unparseable reviewer; it is never dropped, so quorum arithmetic holds.
type Vote struct {
	ReviewerID string  `json:"reviewer_id"`
	Role       Role    `json:"role"`
	Verdict    Verdict `json:"verdict"`
	Reasoning  string  `json:"reasoning"`
	Issues     []Issue `json:"issues"`
	Synthetic  bool    `json:"synthetic,omitempty"`
}

// FailureVote builds the canonical failure vote: a Reject carrying the cause
// as diagnostic reasoning and no issues.
func FailureVote(reviewerID string, role Role, cause string) Vote {
	return Vote{
		ReviewerID: reviewerID,
		Role:       role,
		Verdict:    VerdictReject,
		Reasoning:  cause,
		Issues:     []Issue{},
		Synthetic:  true,
	}
}

// VoteSet is the ordered vote sequence for one round. Order is launch order,
// stable regardless of completion race.
type VoteSet []Vote

// EscalationOutcome records what the adversarial audit concluded.
type EscalationOutcome string

const (
	OutcomeConfirmed  EscalationOutcome = "confirmed"
	OutcomeOverturned EscalationOutcome = "overturned"
)

// Escalation is the explicitly flagged extra vote produced by the
// anti-sycophancy audit. The base VoteSet is never silently mutated.
type Escalation struct {
	Vote    Vote              `json:"vote"`
	Outcome EscalationOutcome `json:"outcome"`
}

// Decision summary values.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Decision is the per-round derived summary. It is computed each round and
// never independently stored as authoritative state.
type Decision struct {
	ApproveCount    int     `json:"approve"`
	RejectCount     int     `json:"reject"`
	SycophancyScore float64 `json:"sycophancy_score"`
	FinalDecision   string  `json:"decision"`
	CouncilSize     int     `json:"council_size"`
	RoundNumber     int     `json:"round_number"`
}

// RoundResult is everything one blind-review round produced.
type RoundResult struct {
	Votes             VoteSet     `json:"votes"`
	Decision          Decision    `json:"decision"`
	Escalation        *Escalation `json:"escalation,omitempty"`
	ApprovalThreshold int         `json:"approval_threshold"`

	// ScoreKnown is false when the detector failed and the score degraded
	// to its default.
	ScoreKnown bool `json:"score_known"`

	// Warnings surfaces best-effort subsystem failures (persistence,
	// notification) that did not block the verdict.
	Warnings []string `json:"warnings,omitempty"`
}
