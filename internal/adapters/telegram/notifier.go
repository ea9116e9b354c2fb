package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"tribunal/internal/events"
	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

// Notifier delivers decision notifications to a Telegram chat. Send-only: the
// gate never reads updates.
type Notifier struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	rateLimiter *rate.Limiter
	log         *logger.Logger
}

// Compile-time check
var _ events.Notifier = (*Notifier)(nil)

// Config contains Telegram notifier configuration.
type Config struct {
	Token  string
	ChatID int64
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram chat id is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	return &Notifier{
		api:    api,
		chatID: cfg.ChatID,
		// Conservative: 20 msg/sec (Telegram limit is 30)
		rateLimiter: rate.NewLimiter(rate.Limit(20), 30),
		log:         logger.Get().With("component", "telegram_notifier"),
	}, nil
}

// NotifyDecision sends the decision summary as one message.
func (n *Notifier) NotifyDecision(ctx context.Context, event events.DecisionEvent) error {
	if err := n.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait")
	}

	msg := tgbotapi.NewMessage(n.chatID, formatDecision(event))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		n.log.Errorf("Failed to send decision notification: %v", err)
		return errors.Wrap(errors.ErrNotifyFailed, err.Error())
	}
	return nil
}

// formatDecision renders the decision event as one Markdown message.
func formatDecision(event events.DecisionEvent) string {
	icon := "❌"
	if event.Result == events.ResultApprove {
		icon = "✅"
	}

	return fmt.Sprintf(
		"%s Review round %d: *%s*\nVotes: %d approve / %d reject (threshold %d)\nSycophancy score: %.2f",
		icon, event.Round, event.Result,
		event.Approve, event.Reject, event.Threshold,
		event.SycophancyScore,
	)
}
