package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tribunal/internal/adapters/config"
	"tribunal/internal/isolation"
	"tribunal/internal/metrics"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

// Recorder durably records a round for calibration. Failures are best-effort:
// they surface as round warnings, never as a blocked verdict.
type Recorder interface {
	RecordRound(roundNumber int, votes VoteSet, escalation *Escalation, finalDecision string) error
	Save() error
}

// ResultPublisher writes the round artifacts and emits the single decision
// notification.
type ResultPublisher interface {
	Publish(ctx context.Context, result *RoundResult) error
}

// Orchestrator runs one complete blind-review round: isolate, launch the
// council in parallel, barrier-wait, aggregate, detect sycophancy, optionally
// escalate, record, publish.
type Orchestrator struct {
	cfg       config.CouncilConfig
	executor  Executor
	isolator  *isolation.Isolator
	scorer    Scorer
	recorder  Recorder
	publisher ResultPublisher
	log       *logger.Logger
}

// NewOrchestrator creates a review orchestrator. The configuration is an
// immutable value captured at construction; nothing mutates it mid-round.
func NewOrchestrator(
	cfg config.CouncilConfig,
	executor Executor,
	isolator *isolation.Isolator,
	scorer Scorer,
	recorder Recorder,
	publisher ResultPublisher,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		executor:  executor,
		isolator:  isolator,
		scorer:    scorer,
		recorder:  recorder,
		publisher: publisher,
		log:       logger.Get().With("component", "orchestrator"),
	}
}

// RunRound executes one round against the evidence source and optional
// requirements text. Per-reviewer failures are absorbed into canonical Reject
// votes; the round's decision is always returned even under partial subsystem
// failure. Only configuration errors fail fast, before any reviewer launches.
func (o *Orchestrator) RunRound(ctx context.Context, evidence, requirements string) (*RoundResult, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}

	o.log.Infof("Starting round %d: council_size=%d approval_threshold=%d",
		o.cfg.RoundNumber, o.cfg.Size, o.cfg.ApprovalThreshold)
	startTime := time.Now()

	scopes, err := o.isolator.IsolateN(evidence, requirements, o.cfg.RequirementsMaxBytes, o.cfg.Size)
	if err != nil {
		return nil, errors.Wrap(err, "isolate evidence")
	}

	// Every scope allocated in this round, including the escalation scope,
	// is released on every exit path.
	allScopes := scopes
	defer func() {
		for _, scope := range allScopes {
			if relErr := scope.Release(); relErr != nil {
				o.log.Warnf("Failed to release scope %s: %v", scope.ID(), relErr)
			}
		}
	}()

	votes := o.runCouncil(ctx, scopes)
	tally := TallyVotes(votes)

	result := &RoundResult{
		Votes:             votes,
		ApprovalThreshold: o.cfg.ApprovalThreshold,
		ScoreKnown:        true,
	}

	score, scoreErr := o.scorer.Score(votes)
	if scoreErr != nil {
		// Detector failure degrades to "score unknown"; it never blocks the
		// verdict and an unknown score never triggers escalation.
		o.log.Warnf("Sycophancy detector failed, score unknown: %v", scoreErr)
		result.ScoreKnown = false
		result.Warnings = append(result.Warnings, fmt.Sprintf("sycophancy score unknown: %v", scoreErr))
		score = 0
	}

	if result.ScoreKnown && ShouldEscalate(tally, o.cfg.Size, score, o.cfg.SycophancyThreshold) {
		o.log.Infof("Escalating round %d: unanimous approval with score %.2f >= %.2f",
			o.cfg.RoundNumber, score, o.cfg.SycophancyThreshold)

		adversarial, escScope := o.runAdversarial(ctx, evidence, requirements)
		if escScope != nil {
			allScopes = append(allScopes, escScope)
		}

		var escalation Escalation
		tally, escalation = ApplyEscalation(tally, adversarial)
		result.Escalation = &escalation
		metrics.RecordEscalation(string(escalation.Outcome))

		o.log.Infof("Escalation outcome: %s (approve=%d reject=%d)",
			escalation.Outcome, tally.Approve, tally.Reject)
	}

	// The threshold re-check uses post-escalation counts.
	finalDecision := DecideFromTally(tally, o.cfg.ApprovalThreshold)

	result.Decision = Decision{
		ApproveCount:    tally.Approve,
		RejectCount:     tally.Reject,
		SycophancyScore: score,
		FinalDecision:   finalDecision,
		CouncilSize:     o.cfg.Size,
		RoundNumber:     o.cfg.RoundNumber,
	}

	metrics.RecordRound(finalDecision, score, result.ScoreKnown)

	o.recordRound(result)
	o.publishRound(ctx, result)

	o.log.Infof("Round %d complete: decision=%s approve=%d reject=%d score=%.2f (duration: %v)",
		o.cfg.RoundNumber, finalDecision, tally.Approve, tally.Reject, score, time.Since(startTime))

	return result, nil
}

// runCouncil launches all reviewers concurrently and barrier-waits until
// every invocation terminates. Votes land at their launch index, so VoteSet
// order is launch order regardless of completion race. One slow or failed
// reviewer cannot block collection of the others; aggregation never starts
// before all finish.
func (o *Orchestrator) runCouncil(ctx context.Context, scopes []*isolation.Scope) VoteSet {
	votes := make(VoteSet, o.cfg.Size)

	var wg sync.WaitGroup
	for slot := 0; slot < o.cfg.Size; slot++ {
		role := RoleForSlot(slot)
		reviewerID := ReviewerID(role, slot)

		wg.Add(1)
		go func(slot int, role Role, reviewerID string, scope *isolation.Scope) {
			defer wg.Done()
			votes[slot] = o.runReviewer(ctx, reviewerID, role, scope)
		}(slot, role, reviewerID, scopes[slot])
	}
	wg.Wait()

	return votes
}

// runReviewer executes one reviewer with its execution time bound and always
// yields exactly one vote. Executor crash, timeout, or unavailability
// resolves to the canonical failure vote, never an aborted round.
func (o *Orchestrator) runReviewer(ctx context.Context, reviewerID string, role Role, scope *isolation.Scope) Vote {
	rctx, cancel := context.WithTimeout(ctx, o.cfg.ReviewTimeout)
	defer cancel()

	start := time.Now()
	raw, err := o.executor.Review(rctx, role, scope)
	metrics.RecordReviewerExecution(string(role), time.Since(start), err)
	if err != nil {
		cause := errors.Wrap(err, "reviewer execution failed")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
			cause = errors.Wrapf(errors.ErrReviewerTimeout, "after %v", o.cfg.ReviewTimeout)
		}
		o.log.Warnf("Reviewer %s failed: %v (duration: %v)", reviewerID, cause, time.Since(start))
		return FailureVote(reviewerID, role, cause.Error())
	}

	vote := ParseVote(reviewerID, role, raw)
	o.log.Debugf("Reviewer %s voted %s (duration: %v)", reviewerID, vote.Verdict, time.Since(start))
	return vote
}

// runAdversarial allocates one fresh, independently isolated scope and runs
// the devil's advocate against it. The adversarial reviewer never sees the
// base round's votes or reasoning: its only input is the evidence copy, which
// keeps it an independent audit rather than an informed tie-break.
func (o *Orchestrator) runAdversarial(ctx context.Context, evidence, requirements string) (Vote, *isolation.Scope) {
	reviewerID := ReviewerID(RoleDevilsAdvocate, o.cfg.Size)

	scope, err := o.isolator.Isolate(evidence, requirements, o.cfg.RequirementsMaxBytes)
	if err != nil {
		// Fail-safe direction: an audit that cannot run counts against the
		// suspicious unanimous approval.
		o.log.Errorf("Failed to isolate escalation scope: %v", err)
		return FailureVote(reviewerID, RoleDevilsAdvocate,
			errors.Wrap(err, "escalation scope allocation failed").Error()), nil
	}

	return o.runReviewer(ctx, reviewerID, RoleDevilsAdvocate, scope), scope
}

// recordRound hands the round to the calibration recorder. Persistence
// failures are surfaced as warnings, distinct from the decision itself.
func (o *Orchestrator) recordRound(result *RoundResult) {
	if o.recorder == nil {
		return
	}

	err := o.recorder.RecordRound(
		result.Decision.RoundNumber,
		result.Votes,
		result.Escalation,
		result.Decision.FinalDecision,
	)
	if err == nil {
		err = o.recorder.Save()
	}
	if err != nil {
		o.log.Errorf("Round %d not recorded: %v", result.Decision.RoundNumber, err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("calibration not recorded: %v", err))
	}
}

// publishRound hands the round to the result publisher. Like recording, a
// publish failure never blocks the verdict.
func (o *Orchestrator) publishRound(ctx context.Context, result *RoundResult) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, result); err != nil {
		o.log.Errorf("Round %d publish failed: %v", result.Decision.RoundNumber, err)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("result publish failed: %v", err))
	}
}
