// Package calibration durably records each round's votes and final decision,
// keyed by reviewer identity, so reviewer reliability can be analyzed across
// rounds. Longitudinal analysis itself is out of scope; this package only
// guarantees correct, durable recording.
package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"tribunal/internal/review"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

const stateVersion = "1.0"

// VoteRecord is one reviewer's verdict within a recorded round.
type VoteRecord struct {
	ReviewerID string `json:"reviewer_id"`
	Role       string `json:"role"`
	Verdict    string `json:"verdict"`
	Synthetic  bool   `json:"synthetic,omitempty"`

	// Escalation flags the adversarial audit's extra vote; it is recorded
	// as an explicit addition, never folded into the base vote list.
	Escalation bool `json:"escalation,omitempty"`
}

// RoundRecord is the append-only unit of calibration state. Upserts are
// keyed by round number: recording the same round twice overwrites rather
// than duplicates.
type RoundRecord struct {
	RoundNumber   int          `json:"round_number"`
	Votes         []VoteRecord `json:"votes"`
	FinalDecision string       `json:"final_decision"`
}

// HistoryEntry is one round of a reviewer's longitudinal history.
type HistoryEntry struct {
	RoundNumber   int    `json:"round_number"`
	Verdict       string `json:"verdict"`
	FinalDecision string `json:"final_decision"`

	// Aligned reports whether the reviewer's verdict matched the round's
	// final decision.
	Aligned bool `json:"aligned"`
}

// persistedState is the on-disk document. The reviewer view is derived from
// the rounds at save time; rounds are the authoritative record.
type persistedState struct {
	Version   string                    `json:"version"`
	Rounds    map[string]RoundRecord    `json:"rounds"`
	Reviewers map[string][]HistoryEntry `json:"reviewers"`
}

// Tracker is the file-backed calibration store. It is loaded at start,
// mutated per round, and saved atomically; state survives restarts.
type Tracker struct {
	path string
	log  *logger.Logger

	mu     sync.Mutex
	rounds map[string]RoundRecord
}

// Compile-time check
var _ review.Recorder = (*Tracker)(nil)

// NewTracker creates a tracker persisting to path.
func NewTracker(path string) *Tracker {
	return &Tracker{
		path:   path,
		rounds: make(map[string]RoundRecord),
		log:    logger.Get().With("component", "calibration"),
	}
}

// Load reads persisted state. A missing file yields empty state, not an
// error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			t.rounds = make(map[string]RoundRecord)
			return nil
		}
		return errors.Wrapf(errors.ErrPersistence, "load calibration state: %v", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "decode calibration state: %v", err)
	}

	if state.Rounds == nil {
		state.Rounds = make(map[string]RoundRecord)
	}
	t.rounds = state.Rounds
	t.log.Infof("Loaded calibration state: %d rounds", len(t.rounds))
	return nil
}

// RecordRound upserts one round's votes and final decision. Idempotent:
// repeated calls with identical arguments leave persisted state unchanged
// versus one call.
func (t *Tracker) RecordRound(roundNumber int, votes review.VoteSet, escalation *review.Escalation, finalDecision string) error {
	if roundNumber < 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "round number must be >= 0, got %d", roundNumber)
	}

	record := RoundRecord{
		RoundNumber:   roundNumber,
		Votes:         make([]VoteRecord, 0, len(votes)+1),
		FinalDecision: finalDecision,
	}
	for _, vote := range votes {
		record.Votes = append(record.Votes, VoteRecord{
			ReviewerID: vote.ReviewerID,
			Role:       string(vote.Role),
			Verdict:    string(vote.Verdict),
			Synthetic:  vote.Synthetic,
		})
	}
	if escalation != nil {
		record.Votes = append(record.Votes, VoteRecord{
			ReviewerID: escalation.Vote.ReviewerID,
			Role:       string(escalation.Vote.Role),
			Verdict:    string(escalation.Vote.Verdict),
			Synthetic:  escalation.Vote.Synthetic,
			Escalation: true,
		})
	}

	t.mu.Lock()
	t.rounds[strconv.Itoa(roundNumber)] = record
	t.mu.Unlock()

	return nil
}

// History returns a reviewer's recorded history in round order.
func (t *Tracker) History(reviewerID string) []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return historyFor(t.rounds, reviewerID)
}

// Save persists state atomically: the document is written to a temp file in
// the same directory, then renamed over the target. No reader can observe a
// partially written file.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := persistedState{
		Version:   stateVersion,
		Rounds:    t.rounds,
		Reviewers: reviewerHistories(t.rounds),
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "encode calibration state: %v", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(errors.ErrPersistence, "create calibration dir: %v", err)
	}

	tmp, err := os.CreateTemp(dir, ".calibration-*.tmp")
	if err != nil {
		return errors.Wrapf(errors.ErrPersistence, "create temp file: %v", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "write temp file: %v", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "sync temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "close temp file: %v", err)
	}

	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(errors.ErrPersistence, "rename calibration state: %v", err)
	}

	return nil
}

// reviewerHistories derives the reviewer_id -> history mapping from the
// recorded rounds.
func reviewerHistories(rounds map[string]RoundRecord) map[string][]HistoryEntry {
	reviewers := make(map[string][]HistoryEntry)
	for _, record := range rounds {
		for _, vote := range record.Votes {
			if _, seen := reviewers[vote.ReviewerID]; !seen {
				reviewers[vote.ReviewerID] = nil
			}
		}
	}
	for id := range reviewers {
		reviewers[id] = historyFor(rounds, id)
	}
	return reviewers
}

func historyFor(rounds map[string]RoundRecord, reviewerID string) []HistoryEntry {
	var entries []HistoryEntry
	for _, record := range rounds {
		for _, vote := range record.Votes {
			if vote.ReviewerID != reviewerID {
				continue
			}
			aligned := (vote.Verdict == string(review.VerdictApprove)) ==
				(record.FinalDecision == review.DecisionApprove)
			entries = append(entries, HistoryEntry{
				RoundNumber:   record.RoundNumber,
				Verdict:       vote.Verdict,
				FinalDecision: record.FinalDecision,
				Aligned:       aligned,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RoundNumber < entries[j].RoundNumber
	})
	return entries
}
