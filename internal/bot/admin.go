package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/relay-bot/internal/domain"
)

// broadcastInterval keeps broadcasts under Telegram's global send limit
var broadcastInterval = 40 * time.Millisecond

// handleAdmin shows the admin panel
func (b *Bot) handleAdmin(_ context.Context, msg *tgbotapi.Message) error {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Bot Statistics", callbackBotStats),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📢 Broadcast", callbackStartBroadcast),
		),
	)

	return b.sendMarkdown(msg.Chat.ID, "🛠 *Admin Panel*", keyboard)
}

// handleUsers lists the most recently active users
func (b *Bot) handleUsers(ctx context.Context, msg *tgbotapi.Message) error {
	users, err := b.Admin.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		return b.sendMessage(msg.Chat.ID, "No users found.")
	}

	var sb strings.Builder
	sb.WriteString("👥 Bot Users:\n\n")
	for _, u := range users {
		fmt.Fprintf(&sb, "• %d - %s\n", u.ID, u.DisplayName())
	}

	return b.sendMessage(msg.Chat.ID, sb.String())
}

// handleStats shows user counts
func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.statsText(ctx)
	if err != nil {
		return err
	}
	return b.sendMarkdown(msg.Chat.ID, text, nil)
}

func (b *Bot) statsText(ctx context.Context) (string, error) {
	stats, err := b.Admin.Stats(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load stats: %w", err)
	}
	return formatStats(stats), nil
}

func formatStats(s *domain.UserStats) string {
	return fmt.Sprintf(
		"🤖 *Bot Statistics*\n\n👥 Total Users: `%d`\n🟢 Active \\(7 days\\): `%d`\n🌞 Daily Active: `%d`",
		s.Total, s.ActiveWeek, s.ActiveToday,
	)
}

// handleBroadcast sends the command argument to every known user
func (b *Bot) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) error {
	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		return b.sendMessage(msg.Chat.ID, "Usage: /broadcast <message>")
	}

	recipients, err := b.Admin.Recipients(ctx)
	if err != nil {
		return fmt.Errorf("failed to load recipients: %w", err)
	}

	log := loggerFrom(ctx, b.Logger)
	log.Info("Broadcast started", "recipients", len(recipients))

	ctx, cancel := interruptible(ctx)
	defer cancel()

	delivered, failed := 0, 0
	for i, id := range recipients {
		if i > 0 {
			select {
			case <-ctx.Done():
				log.Warn("Broadcast interrupted", "delivered", delivered, "failed", failed, "remaining", len(recipients)-i)
				return b.sendMessage(msg.Chat.ID, fmt.Sprintf("📢 Broadcast interrupted: %d delivered, %d failed.", delivered, failed))
			case <-time.After(broadcastInterval):
			}
		}
		if err := b.sendMessage(id, text); err != nil {
			failed++
			log.Warn("Broadcast delivery failed", "recipient", id, "error", err)
			continue
		}
		delivered++
	}

	log.Info("Broadcast finished", "delivered", delivered, "failed", failed)
	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("📢 Broadcast finished: %d delivered, %d failed.", delivered, failed))
}

// handleResetLimit clears a user's cooldown
func (b *Bot) handleResetLimit(ctx context.Context, msg *tgbotapi.Message) error {
	userID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		return b.sendMessage(msg.Chat.ID, "Usage: /resetlimit <user_id>")
	}

	b.Limiter.Reset(userID)
	loggerFrom(ctx, b.Logger).Info("Cooldown reset", "target_user_id", userID)

	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ Cooldown cleared for user %d.", userID))
}
