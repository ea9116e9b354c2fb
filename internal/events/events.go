package events

import (
	"context"
	"time"

	"tribunal/internal/review"
	"tribunal/pkg/logger"
)

// Event topic constants
const (
	TopicDecisionMade = "review.decision_made"
)

// Result values carried in DecisionEvent.Result. Aliased from the round
// decision so notifiers cannot drift from the orchestrator's vocabulary.
const (
	ResultApprove = review.DecisionApprove
	ResultReject  = review.DecisionReject
)

// DecisionEvent is the single notification emitted per round.
type DecisionEvent struct {
	Round           int     `json:"round"`
	Approve         int     `json:"approve"`
	Reject          int     `json:"reject"`
	Threshold       int     `json:"threshold"`
	SycophancyScore float64 `json:"sycophancy_score"`
	Result          string  `json:"result"`
	EmittedAt       string  `json:"emitted_at"`
}

// NewDecisionEvent stamps an event with the emission time.
func NewDecisionEvent(round, approve, reject, threshold int, score float64, result string) DecisionEvent {
	return DecisionEvent{
		Round:           round,
		Approve:         approve,
		Reject:          reject,
		Threshold:       threshold,
		SycophancyScore: score,
		Result:          result,
		EmittedAt:       time.Now().UTC().Format(time.RFC3339),
	}
}

// Notifier delivers the decision notification. The publisher emits exactly
// one event per round through whichever notifier is configured.
type Notifier interface {
	NotifyDecision(ctx context.Context, event DecisionEvent) error
}

// LogNotifier is the fallback notifier: it writes the decision to the log.
type LogNotifier struct {
	log *logger.Logger
}

// Compile-time check
var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{
		log: logger.Get().With("component", "log_notifier"),
	}
}

// NotifyDecision logs the decision event.
func (n *LogNotifier) NotifyDecision(ctx context.Context, event DecisionEvent) error {
	n.log.Infof("Decision: round=%d result=%s approve=%d reject=%d threshold=%d score=%.2f",
		event.Round, event.Result, event.Approve, event.Reject, event.Threshold, event.SycophancyScore)
	return nil
}
