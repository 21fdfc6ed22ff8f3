package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/relay-bot/internal/domain"
	"github.com/glebk/relay-bot/internal/metrics"
)

// Callback data
const (
	achievementsPrefix     = "achievements_"
	callbackDaily          = "daily"
	callbackBotStats       = "bot_stats"
	callbackStartBroadcast = "start_broadcast"
)

const adminPanelDenied = "❌ You do not have permission to access this panel."

// handleCallbackQuery handles inline button presses
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	b.answerCallback(ctx, query.ID, "")

	if query.From == nil || query.Message == nil {
		return nil
	}

	b.Metrics.IncMessage(metrics.KindCallback)
	b.Recorder.LogMessage(ctx, query.From.ID, domain.MessageTypeCallback, query.Data)

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	switch {
	case strings.HasPrefix(query.Data, achievementsPrefix):
		userID, err := strconv.ParseInt(strings.TrimPrefix(query.Data, achievementsPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid callback data %q: %w", query.Data, err)
		}
		text, err := b.achievementsText(ctx, userID)
		if err != nil {
			return err
		}
		return b.editMessage(chatID, messageID, text)

	case query.Data == callbackDaily:
		text, err := b.claimDaily(ctx, query.From.ID)
		if err != nil {
			return err
		}
		return b.sendMessage(chatID, text)

	case query.Data == callbackBotStats, query.Data == callbackStartBroadcast:
		if !b.Config.IsAdmin(query.From.ID) {
			return b.editMessage(chatID, messageID, esc(adminPanelDenied))
		}
		if query.Data == callbackStartBroadcast {
			return b.editMessage(chatID, messageID, esc("📢 Send /broadcast <message> to message every user."))
		}
		text, err := b.statsText(ctx)
		if err != nil {
			return err
		}
		return b.editMessage(chatID, messageID, text)
	}

	return nil
}
