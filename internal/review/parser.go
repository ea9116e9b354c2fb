package review

import (
	"encoding/json"
	"strings"
)

// reviewerOutput is the shape reviewers SHOULD answer in. The executor is a
// free-text generator with no enforced schema, so nothing here is trusted.
type reviewerOutput struct {
	Verdict   string  `json:"verdict"`
	Reasoning string  `json:"reasoning"`
	Issues    []Issue `json:"issues"`
}

// ParseVote turns raw executor output into a Vote using an explicit fallback
// chain: strict JSON parse, then code-fence stripping, then balanced-brace
// extraction, then the canonical parse-failure Reject. It never returns an
// error; a vote always comes back so quorum arithmetic holds.
func ParseVote(reviewerID string, role Role, raw string) Vote {
	if out, ok := parseReviewerOutput(raw); ok {
		vote := Vote{
			ReviewerID: reviewerID,
			Role:       role,
			Verdict:    NormalizeVerdict(out.Verdict),
			Reasoning:  out.Reasoning,
			Issues:     out.Issues,
		}
		if vote.Issues == nil {
			vote.Issues = []Issue{}
		}
		return vote
	}

	return FailureVote(reviewerID, role, "parse failure: no valid verdict object in reviewer output")
}

// parseReviewerOutput attempts the tolerant parse chain and reports whether
// any stage produced a verdict object.
func parseReviewerOutput(raw string) (reviewerOutput, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return reviewerOutput{}, false
	}

	// Stage 1: strict parse of the whole payload.
	if out, ok := tryUnmarshal(trimmed); ok {
		return out, true
	}

	// Stage 2: strip markdown code fencing and retry.
	if stripped := stripCodeFences(trimmed); stripped != trimmed {
		if out, ok := tryUnmarshal(stripped); ok {
			return out, true
		}
		trimmed = stripped
	}

	// Stage 3: extract the first complete top-level brace-delimited object.
	if block, ok := extractBraceBlock(trimmed); ok {
		if out, ok := tryUnmarshal(block); ok {
			return out, true
		}
	}

	return reviewerOutput{}, false
}

func tryUnmarshal(s string) (reviewerOutput, bool) {
	var out reviewerOutput
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return reviewerOutput{}, false
	}
	// An object without a verdict field is not a verdict payload.
	if strings.TrimSpace(out.Verdict) == "" {
		return reviewerOutput{}, false
	}
	return out, true
}

// stripCodeFences removes a leading/trailing markdown fence, including a
// language tag like ```json.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// Drop the language tag line.
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// extractBraceBlock returns the first balanced top-level {...} block. Brace
// characters inside JSON strings are skipped so reasoning text cannot
// unbalance the scan.
func extractBraceBlock(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// NormalizeVerdict maps a raw verdict string onto the closed verdict set.
// Only an exact case-insensitive "APPROVE" approves; anything else, including
// absent or unparseable verdicts, counts as Reject.
func NormalizeVerdict(raw string) Verdict {
	if strings.EqualFold(strings.TrimSpace(raw), string(VerdictApprove)) {
		return VerdictApprove
	}
	return VerdictReject
}
