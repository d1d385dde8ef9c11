// Package notify delivers analysis alerts and snapshot changes to a Telegram chat.
// Messages are formatted with MarkdownV2, spaced by a rate limiter and sent with
// linear retry backoff.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/f-sync/socialpulse/internal/analysis"
)

const (
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
	defaultMinInterval = time.Second
	markdownV2Mode     = "MarkdownV2"
	timestampLayout    = "2006-01-02 15:04"

	errMessageCreateBot     = "failed to create Telegram bot"
	errMessageInvalidChatID = "invalid chat ID"
	errMessageSendFailed    = "failed to send message"
	errMessageRateLimit     = "rate limiter wait failed"

	logMessageSendAttemptFailed = "telegram send attempt failed"
	logFieldAttempt             = "attempt"
)

// Notifier delivers analysis outcomes to the account owner.
type Notifier interface {
	NotifyAlerts(ctx context.Context, result analysis.Analysis) error
	NotifyComparison(ctx context.Context, comparison analysis.Comparison) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

// NotifyAlerts does nothing.
func (NopNotifier) NotifyAlerts(context.Context, analysis.Analysis) error { return nil }

// NotifyComparison does nothing.
func (NopNotifier) NotifyComparison(context.Context, analysis.Comparison) error { return nil }

// MessageSender is the part of the Telegram bot API the notifier uses.
type MessageSender interface {
	Send(chattable tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig holds delivery settings. MinInterval is the minimum spacing between
// two messages to the chat.
type TelegramConfig struct {
	BotToken    string
	ChatID      string
	MaxRetries  int
	RetryDelay  time.Duration
	MinInterval time.Duration
}

// TelegramNotifier sends MarkdownV2 messages to one chat.
type TelegramNotifier struct {
	sender     MessageSender
	chatID     int64
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTelegramNotifier authenticates against the Bot API and builds a notifier.
func NewTelegramNotifier(config TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateBot, err)
	}
	return NewTelegramNotifierWithSender(bot, config, logger)
}

// NewTelegramNotifierWithSender builds a notifier around an existing sender.
func NewTelegramNotifierWithSender(sender MessageSender, config TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(config.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageInvalidChatID, err)
	}
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	minInterval := config.MinInterval
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramNotifier{
		sender:     sender,
		chatID:     chatID,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
		logger:     logger,
	}, nil
}

// NotifyAlerts sends the health score and alert list. Analyses without alerts are not sent.
func (notifier *TelegramNotifier) NotifyAlerts(ctx context.Context, result analysis.Analysis) error {
	if len(result.SocialHealth.Alerts) == 0 {
		return nil
	}
	return notifier.send(ctx, formatAlerts(result))
}

// NotifyComparison sends follower changes between two snapshots. Comparisons without
// follower movement are not sent.
func (notifier *TelegramNotifier) NotifyComparison(ctx context.Context, comparison analysis.Comparison) error {
	if len(comparison.NewFollowers) == 0 && len(comparison.LostFollowers) == 0 {
		return nil
	}
	return notifier.send(ctx, formatComparison(comparison))
}

func (notifier *TelegramNotifier) send(ctx context.Context, text string) error {
	if err := notifier.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", errMessageRateLimit, err)
	}
	message := tgbotapi.NewMessage(notifier.chatID, text)
	message.ParseMode = markdownV2Mode

	var lastErr error
	for attempt := 1; attempt <= notifier.maxRetries; attempt++ {
		_, err := notifier.sender.Send(message)
		if err == nil {
			return nil
		}
		lastErr = err
		notifier.logger.Warn(logMessageSendAttemptFailed, zap.Int(logFieldAttempt, attempt), zap.Error(err))
		if attempt == notifier.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(notifier.retryDelay * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s after %d retries: %w", errMessageSendFailed, notifier.maxRetries, lastErr)
}

var alertTypeEmoji = map[analysis.AlertType]string{
	analysis.AlertTypeDanger:  "🚨",
	analysis.AlertTypeWarning: "⚠️",
	analysis.AlertTypeSuccess: "✅",
	analysis.AlertTypeInfo:    "ℹ️",
}

func formatAlerts(result analysis.Analysis) string {
	var builder strings.Builder
	builder.WriteString("📊 *Social health report*\n\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n", escapeMarkdownV2(result.Metadata.AnalyzedAt.Format(timestampLayout))))
	builder.WriteString(fmt.Sprintf("Overall score: *%s*\n\n",
		escapeMarkdownV2(fmt.Sprintf("%.1f", result.SocialHealth.OverallScore))))
	for index, alert := range result.SocialHealth.Alerts {
		builder.WriteString(fmt.Sprintf("%d\\. %s *%s*\n", index+1, alertTypeEmoji[alert.Type], escapeMarkdownV2(alert.Title)))
		builder.WriteString(fmt.Sprintf("   %s\n", escapeMarkdownV2(alert.Message)))
	}
	return builder.String()
}

func formatComparison(comparison analysis.Comparison) string {
	var builder strings.Builder
	builder.WriteString("🔄 *Follower changes*\n\n")
	builder.WriteString(fmt.Sprintf("🗓 %s → %s\n\n",
		escapeMarkdownV2(comparison.PreviousTimestamp.Format(timestampLayout)),
		escapeMarkdownV2(comparison.CurrentTimestamp.Format(timestampLayout))))
	writeUsernameLine(&builder, "New followers", comparison.NewFollowers)
	writeUsernameLine(&builder, "Lost followers", comparison.LostFollowers)
	writeUsernameLine(&builder, "Possible blocks", comparison.PossibleBlocks)
	return builder.String()
}

func writeUsernameLine(builder *strings.Builder, title string, entities []analysis.Entity) {
	if len(entities) == 0 {
		return
	}
	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, escapeMarkdownV2(entity.Username))
	}
	builder.WriteString(fmt.Sprintf("*%s* \\(%d\\): %s\n", escapeMarkdownV2(title), len(entities), strings.Join(names, ", ")))
}

// escapeMarkdownV2 escapes the characters MarkdownV2 reserves.
func escapeMarkdownV2(text string) string {
	var builder strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			builder.WriteRune('\\')
		}
		builder.WriteRune(char)
	}
	return builder.String()
}
