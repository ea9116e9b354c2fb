// Package publish writes a round's durable artifacts and emits the single
// decision notification.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tribunal/internal/events"
	"tribunal/internal/review"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

const summaryVersion = "1.0"

// Archive optionally mirrors round records into external durable storage
// (e.g. the Postgres round archive). Best-effort: archive failures are
// logged, never propagated into the decision path.
type Archive interface {
	SaveRound(ctx context.Context, result *review.RoundResult) error
}

// summary is the per-round decision summary document.
type summary struct {
	Version         string             `json:"version"`
	Approve         int                `json:"approve"`
	Reject          int                `json:"reject"`
	SycophancyScore float64            `json:"sycophancy_score"`
	Decision        string             `json:"decision"`
	CouncilSize     int                `json:"council_size"`
	RoundNumber     int                `json:"round_number"`
	Escalation      *review.Escalation `json:"escalation,omitempty"`
}

// Publisher writes the vote set and decision summary to per-round storage and
// emits exactly one decision notification.
type Publisher struct {
	dir      string
	notifier events.Notifier
	archive  Archive
	log      *logger.Logger
}

// Compile-time check
var _ review.ResultPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing under dir. The archive may be nil.
func NewPublisher(dir string, notifier events.Notifier, archive Archive) *Publisher {
	return &Publisher{
		dir:      dir,
		notifier: notifier,
		archive:  archive,
		log:      logger.Get().With("component", "publisher"),
	}
}

// Publish writes votes.json (the ordered VoteSet) and summary.json for the
// round, then emits the decision event. Result writes are best-effort: a
// write failure is returned to the caller as a warning-level error, but the
// single decision notification is still emitted so downstream consumers learn
// the verdict even when the artifact store is unavailable.
func (p *Publisher) Publish(ctx context.Context, result *review.RoundResult) error {
	persistErr := p.writeArtifacts(result)
	if persistErr != nil {
		p.log.Errorf("Round %d artifacts not written: %v", result.Decision.RoundNumber, persistErr)
	}

	if p.archive != nil {
		if err := p.archive.SaveRound(ctx, result); err != nil {
			p.log.Warnf("Round %d archive failed: %v", result.Decision.RoundNumber, err)
		}
	}

	event := events.NewDecisionEvent(
		result.Decision.RoundNumber,
		result.Decision.ApproveCount,
		result.Decision.RejectCount,
		result.ApprovalThreshold,
		result.Decision.SycophancyScore,
		result.Decision.FinalDecision,
	)
	if err := p.notifier.NotifyDecision(ctx, event); err != nil {
		return errors.Wrap(err, "emit decision notification")
	}

	if persistErr != nil {
		return persistErr
	}

	p.log.Infof("Published round %d", result.Decision.RoundNumber)
	return nil
}

// writeArtifacts writes votes.json and summary.json into the round directory.
func (p *Publisher) writeArtifacts(result *review.RoundResult) error {
	roundDir := filepath.Join(p.dir, fmt.Sprintf("round_%d", result.Decision.RoundNumber))
	if err := os.MkdirAll(roundDir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "create round dir: %v", err)
	}

	if err := writeJSONAtomic(filepath.Join(roundDir, "votes.json"), result.Votes); err != nil {
		return errors.Wrap(err, "write vote set")
	}

	doc := summary{
		Version:         summaryVersion,
		Approve:         result.Decision.ApproveCount,
		Reject:          result.Decision.RejectCount,
		SycophancyScore: result.Decision.SycophancyScore,
		Decision:        result.Decision.FinalDecision,
		CouncilSize:     result.Decision.CouncilSize,
		RoundNumber:     result.Decision.RoundNumber,
		Escalation:      result.Escalation,
	}
	if err := writeJSONAtomic(filepath.Join(roundDir, "summary.json"), doc); err != nil {
		return errors.Wrap(err, "write decision summary")
	}
	return nil
}

// writeJSONAtomic writes a JSON document via temp-file-then-rename so no
// reader observes a partial file.
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "encode %s: %v", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "create temp file: %v", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "write temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "close temp file: %v", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "rename %s: %v", filepath.Base(path), err)
	}
	return nil
}
