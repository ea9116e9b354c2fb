package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tribunal/internal/adapters/config"
	"tribunal/internal/isolation"
	"tribunal/pkg/errors"
)

// stubExecutor scripts responses per role and records every invocation.
type stubExecutor struct {
	mu        sync.Mutex
	responses map[Role]string
	errs      map[Role]error
	delays    map[Role]time.Duration

	calls  []Role
	scopes []*isolation.Scope
}

func (s *stubExecutor) Review(ctx context.Context, role Role, scope *isolation.Scope) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, role)
	s.scopes = append(s.scopes, scope)
	delay := s.delays[role]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[role]; ok {
		return "", err
	}
	return s.responses[role], nil
}

func (s *stubExecutor) calledRoles() []Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Role, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *stubExecutor) seenScopes() []*isolation.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*isolation.Scope, len(s.scopes))
	copy(out, s.scopes)
	return out
}

// fixedScorer returns a scripted score.
type fixedScorer struct {
	score float64
	err   error
}

func (s *fixedScorer) Score(votes VoteSet) (float64, error) {
	return s.score, s.err
}

// memoryRecorder captures recorded rounds.
type memoryRecorder struct {
	rounds    map[int]string
	saveCalls int
	failWith  error
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{rounds: make(map[int]string)}
}

func (r *memoryRecorder) RecordRound(roundNumber int, votes VoteSet, escalation *Escalation, finalDecision string) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.rounds[roundNumber] = finalDecision
	return nil
}

func (r *memoryRecorder) Save() error {
	if r.failWith != nil {
		return r.failWith
	}
	r.saveCalls++
	return nil
}

// countingPublisher counts publish calls.
type countingPublisher struct {
	published []*RoundResult
	failWith  error
}

func (p *countingPublisher) Publish(ctx context.Context, result *RoundResult) error {
	if p.failWith != nil {
		return p.failWith
	}
	p.published = append(p.published, result)
	return nil
}

func approveResponse(reasoning string) string {
	return fmt.Sprintf(`{"verdict": "APPROVE", "reasoning": %q, "issues": []}`, reasoning)
}

func rejectResponse(reasoning string) string {
	return fmt.Sprintf(`{"verdict": "REJECT", "reasoning": %q, "issues": []}`, reasoning)
}

func testCouncilConfig() config.CouncilConfig {
	return config.CouncilConfig{
		Size:                 3,
		ApprovalThreshold:    2,
		SycophancyThreshold:  0.6,
		RoundNumber:          7,
		ReviewTimeout:        5 * time.Second,
		RequirementsMaxBytes: 1024,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.CouncilConfig, executor Executor, scorer Scorer) (*Orchestrator, *memoryRecorder, *countingPublisher) {
	t.Helper()
	recorder := newMemoryRecorder()
	publisher := &countingPublisher{}
	orch := NewOrchestrator(cfg, executor, isolation.NewIsolator(t.TempDir()), scorer, recorder, publisher)
	return orch, recorder, publisher
}

func TestRunRound_AllApproveLowScore(t *testing.T) {
	// Scenario: council_size=3, threshold=2, all approve, score=0.3.
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("requirements verified against the diff"),
			RoleTestAuditor:          approveResponse("coverage includes the new branches"),
			RoleCodeQuality:          approveResponse("error handling is consistent"),
		},
	}
	orch, recorder, publisher := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.3})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)
	assert.Equal(t, 3, result.Decision.ApproveCount)
	assert.Equal(t, 0, result.Decision.RejectCount)
	assert.Nil(t, result.Escalation)
	assert.NotContains(t, executor.calledRoles(), RoleDevilsAdvocate)

	// Invariant: every slot yields exactly one vote.
	assert.Equal(t, result.Decision.CouncilSize,
		result.Decision.ApproveCount+result.Decision.RejectCount)
	assert.Len(t, result.Votes, 3)

	assert.Equal(t, "approve", recorder.rounds[7])
	assert.Equal(t, 1, recorder.saveCalls)
	require.Len(t, publisher.published, 1)
}

func TestRunRound_EscalationOverturns(t *testing.T) {
	// Scenario: all approve, score=0.75, devil's advocate rejects.
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("looks good"),
			RoleTestAuditor:          approveResponse("looks good"),
			RoleCodeQuality:          approveResponse("looks good"),
			RoleDevilsAdvocate:       rejectResponse("the migration path is untested"),
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.75})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	require.NotNil(t, result.Escalation)
	assert.Equal(t, OutcomeOverturned, result.Escalation.Outcome)
	assert.Equal(t, 2, result.Decision.ApproveCount)
	assert.Equal(t, 1, result.Decision.RejectCount)
	assert.Equal(t, 3, result.Decision.ApproveCount+result.Decision.RejectCount)

	// Post-escalation recheck against threshold 2 still approves.
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)

	// The base VoteSet is never silently mutated: the flip lives only in
	// the counts and the flagged escalation vote.
	require.Len(t, result.Votes, 3)
	for _, vote := range result.Votes {
		assert.Equal(t, VerdictApprove, vote.Verdict)
	}
	assert.Equal(t, RoleDevilsAdvocate, result.Escalation.Vote.Role)
}

func TestRunRound_EscalationOverturnFlipsDecisionAtFullThreshold(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("looks good"),
			RoleTestAuditor:          approveResponse("looks good"),
			RoleCodeQuality:          approveResponse("looks good"),
			RoleDevilsAdvocate:       rejectResponse("claim is unsupported"),
		},
	}
	cfg := testCouncilConfig()
	cfg.ApprovalThreshold = 3
	orch, _, _ := newTestOrchestrator(t, cfg, executor, &fixedScorer{score: 0.9})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	require.NotNil(t, result.Escalation)
	assert.Equal(t, OutcomeOverturned, result.Escalation.Outcome)
	assert.Equal(t, DecisionReject, result.Decision.FinalDecision)
}

func TestRunRound_EscalationConfirms(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("looks good"),
			RoleTestAuditor:          approveResponse("looks good"),
			RoleCodeQuality:          approveResponse("looks good"),
			RoleDevilsAdvocate:       approveResponse("no substantive objection found"),
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.8})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	require.NotNil(t, result.Escalation)
	assert.Equal(t, OutcomeConfirmed, result.Escalation.Outcome)
	assert.Equal(t, 3, result.Decision.ApproveCount)
	assert.Equal(t, 0, result.Decision.RejectCount)
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)
}

func TestRunRound_ExecutorCrashYieldsCanonicalReject(t *testing.T) {
	// Scenario: one executor crashes; the round still yields 3 votes.
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("requirements verified"),
			RoleCodeQuality:          approveResponse("quality is fine"),
		},
		errs: map[Role]error{
			RoleTestAuditor: errors.ErrReviewerUnavailable,
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.1})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	require.Len(t, result.Votes, 3)
	assert.Equal(t, 2, result.Decision.ApproveCount)
	assert.Equal(t, 1, result.Decision.RejectCount)
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)

	failed := result.Votes[1]
	assert.Equal(t, RoleTestAuditor, failed.Role)
	assert.Equal(t, VerdictReject, failed.Verdict)
	assert.True(t, failed.Synthetic)
	assert.Contains(t, failed.Reasoning, "reviewer")
	assert.Nil(t, result.Escalation)
}

func TestRunRound_TimeoutResolvesToFailureVote(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("fine"),
			RoleCodeQuality:          approveResponse("fine"),
			RoleTestAuditor:          approveResponse("never delivered"),
		},
		delays: map[Role]time.Duration{
			RoleTestAuditor: 500 * time.Millisecond,
		},
	}
	cfg := testCouncilConfig()
	cfg.ReviewTimeout = 50 * time.Millisecond
	orch, _, _ := newTestOrchestrator(t, cfg, executor, &fixedScorer{score: 0.1})

	start := time.Now()
	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	// The stuck reviewer resolved at its bound instead of hanging the barrier.
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	failed := result.Votes[1]
	assert.True(t, failed.Synthetic)
	assert.Contains(t, failed.Reasoning, "timed out")
}

func TestRunRound_VoteOrderIsLaunchOrder(t *testing.T) {
	// Slot 0 finishes last; its vote must still land first.
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("slow but thorough"),
			RoleTestAuditor:          rejectResponse("fast rejection"),
			RoleCodeQuality:          approveResponse("quick pass"),
		},
		delays: map[Role]time.Duration{
			RoleRequirementsVerifier: 100 * time.Millisecond,
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.1})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	require.Len(t, result.Votes, 3)
	assert.Equal(t, RoleRequirementsVerifier, result.Votes[0].Role)
	assert.Equal(t, RoleTestAuditor, result.Votes[1].Role)
	assert.Equal(t, RoleCodeQuality, result.Votes[2].Role)
	assert.Equal(t, ReviewerID(RoleRequirementsVerifier, 0), result.Votes[0].ReviewerID)
}

func TestRunRound_ReviewersGetIndependentScopes(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("a"),
			RoleTestAuditor:          approveResponse("b"),
			RoleCodeQuality:          approveResponse("c"),
			RoleDevilsAdvocate:       rejectResponse("d"),
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor, &fixedScorer{score: 0.9})

	_, err := orch.RunRound(context.Background(), "evidence body", "")
	require.NoError(t, err)

	scopes := executor.seenScopes()
	require.Len(t, scopes, 4) // 3 council + 1 escalation

	dirs := make(map[string]bool)
	for _, scope := range scopes {
		dirs[scope.Dir()] = true
	}
	assert.Len(t, dirs, 4, "no two reviewer scopes may share a storage location")

	// Every scope, including the escalation scope, is released at round end.
	for _, scope := range scopes {
		assert.True(t, scope.Released())
	}
}

func TestRunRound_InvalidConfigFailsFast(t *testing.T) {
	executor := &stubExecutor{responses: map[Role]string{}}
	cfg := testCouncilConfig()
	cfg.ApprovalThreshold = 5 // above council size

	orch, _, publisher := newTestOrchestrator(t, cfg, executor, &fixedScorer{score: 0})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
	assert.Nil(t, result)
	assert.Empty(t, executor.calledRoles(), "no reviewer may launch on invalid config")
	assert.Empty(t, publisher.published)
}

func TestRunRound_ScorerFailureDegradesToUnknown(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("a"),
			RoleTestAuditor:          approveResponse("b"),
			RoleCodeQuality:          approveResponse("c"),
		},
	}
	orch, _, _ := newTestOrchestrator(t, testCouncilConfig(), executor,
		&fixedScorer{err: errors.New("detector exploded")})

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	assert.False(t, result.ScoreKnown)
	assert.Equal(t, 0.0, result.Decision.SycophancyScore)
	assert.NotEmpty(t, result.Warnings)
	// An unknown score never triggers escalation, even on unanimity.
	assert.Nil(t, result.Escalation)
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)
}

func TestRunRound_PersistenceFailuresDoNotBlockDecision(t *testing.T) {
	executor := &stubExecutor{
		responses: map[Role]string{
			RoleRequirementsVerifier: approveResponse("a"),
			RoleTestAuditor:          approveResponse("b"),
			RoleCodeQuality:          approveResponse("c"),
		},
	}
	recorder := newMemoryRecorder()
	recorder.failWith = errors.ErrPersistence
	publisher := &countingPublisher{failWith: errors.ErrPersistence}

	orch := NewOrchestrator(testCouncilConfig(), executor,
		isolation.NewIsolator(t.TempDir()), &fixedScorer{score: 0.1}, recorder, publisher)

	result, err := orch.RunRound(context.Background(), "evidence body", "")

	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, result.Decision.FinalDecision)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "not recorded")
	assert.Contains(t, result.Warnings[1], "publish failed")
}
