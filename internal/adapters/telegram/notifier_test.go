package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tribunal/internal/events"
	"tribunal/internal/review"
)

func TestFormatDecision(t *testing.T) {
	approved := events.DecisionEvent{
		Round:           4,
		Approve:         3,
		Reject:          0,
		Threshold:       2,
		SycophancyScore: 0.31,
		Result:          review.DecisionApprove,
	}

	text := formatDecision(approved)

	// The approve icon is keyed off the shared decision constant, so the
	// orchestrator's vocabulary drives the rendering directly.
	assert.Contains(t, text, "✅")
	assert.Contains(t, text, "*approve*")
	assert.Contains(t, text, "Review round 4")
	assert.Contains(t, text, "3 approve / 0 reject (threshold 2)")
	assert.Contains(t, text, "0.31")

	rejected := approved
	rejected.Result = review.DecisionReject

	text = formatDecision(rejected)

	assert.Contains(t, text, "❌")
	assert.Contains(t, text, "*reject*")
}

func TestNewNotifierValidatesConfig(t *testing.T) {
	_, err := NewNotifier(Config{Token: "", ChatID: 1})
	assert.Error(t, err)

	_, err = NewNotifier(Config{Token: "token", ChatID: 0})
	assert.Error(t, err)
}
