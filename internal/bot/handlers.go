package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/relay-bot/internal/domain"
	"github.com/glebk/relay-bot/internal/metrics"
	"github.com/glebk/relay-bot/internal/service"
)

type command struct {
	handler func(ctx context.Context, msg *tgbotapi.Message) error
	guards  []Guard
}

func (b *Bot) registry() map[string]command {
	admin := []Guard{b.requireAdmin}

	return map[string]command{
		"start":        {handler: b.handleStart},
		"help":         {handler: b.handleHelp},
		"profile":      {handler: b.handleProfile},
		"daily":        {handler: b.handleDaily},
		"leaderboard":  {handler: b.handleLeaderboard},
		"achievements": {handler: b.handleAchievements},
		"admin":        {handler: b.handleAdmin, guards: admin},
		"users":        {handler: b.handleUsers, guards: admin},
		"stats":        {handler: b.handleStats, guards: admin},
		"broadcast":    {handler: b.handleBroadcast, guards: admin},
		"resetlimit":   {handler: b.handleResetLimit, guards: admin},
	}
}

// handleMessage records activity, then routes commands and text
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	// stickers, photos and other media are not activity
	if msg.Text == "" {
		return nil
	}

	b.Recorder.Record(ctx, identityOf(msg.From))

	if msg.IsCommand() {
		b.Metrics.IncMessage(metrics.KindCommand)
		b.Recorder.LogMessage(ctx, msg.From.ID, domain.MessageTypeCommand, "/"+msg.Command())
		return b.handleCommand(ctx, msg)
	}

	b.Metrics.IncMessage(metrics.KindText)
	b.Recorder.LogMessage(ctx, msg.From.ID, domain.MessageTypeText, msg.Text)

	return b.handleText(ctx, msg)
}

// handleCommand handles bot commands
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	cmd, ok := b.commands[msg.Command()]
	if !ok {
		return b.sendMessage(msg.Chat.ID, "Unknown command. Use /help")
	}

	if d := runGuards(ctx, msg, cmd.guards); !d.Allow {
		return b.sendMessage(msg.Chat.ID, d.Reply)
	}

	return cmd.handler(ctx, msg)
}

// handleText relays a message to the language model
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	if d := runGuards(ctx, msg, []Guard{b.rateLimited}); !d.Allow {
		return b.sendMessage(msg.Chat.ID, d.Reply)
	}

	log := loggerFrom(ctx, b.Logger)

	if _, err := b.api.Request(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping)); err != nil {
		log.Debug("Failed to send typing action", "error", err)
	}

	reply := b.Responder.Respond(ctx, msg.Text)

	sent, err := b.Dispatcher.Dispatch(ctx, b.chatSender(msg.Chat.ID), reply)
	b.Metrics.AddChunksSent(sent)
	if err != nil {
		return fmt.Errorf("failed to deliver response after %d chunks: %w", sent, err)
	}

	b.announceAchievement(ctx, msg.Chat.ID, msg.From.ID)
	return nil
}

// announceAchievement awards and reports a newly earned badge
func (b *Bot) announceAchievement(ctx context.Context, chatID, userID int64) {
	earned, err := b.Rewards.CheckAchievements(ctx, userID)
	if err != nil {
		loggerFrom(ctx, b.Logger).Warn("Failed to check achievements", "error", err)
		return
	}
	if earned == nil {
		return
	}

	if err := b.sendMessage(chatID, newAchievementText(earned)); err != nil {
		loggerFrom(ctx, b.Logger).Warn("Failed to announce achievement", "error", err)
	}
}

// handleStart handles the /start command
func (b *Bot) handleStart(_ context.Context, msg *tgbotapi.Message) error {
	text := fmt.Sprintf("👋 Welcome, %s! Send me any message and I will answer it.\n\nUse /help to see available commands.",
		firstNameOr(msg.From, "friend"))
	return b.sendMessage(msg.Chat.ID, text)
}

// handleHelp shows the command list
func (b *Bot) handleHelp(_ context.Context, msg *tgbotapi.Message) error {
	lines := []string{
		"*Available Commands:*",
		esc("/start - Start the bot"),
		esc("/profile - View your profile"),
		esc(fmt.Sprintf("/daily - Claim %d daily points", b.Rewards.DailyPoints())),
		esc("/leaderboard - Top users"),
		esc("/achievements - Your achievements"),
		esc("/help - Show this help message"),
	}
	if b.Config.IsAdmin(msg.From.ID) {
		lines = append(lines,
			"",
			"*Admin:*",
			esc("/admin - Admin panel"),
			esc("/users - List users"),
			esc("/stats - Bot statistics"),
			esc("/broadcast <text> - Message every user"),
			esc("/resetlimit <user_id> - Clear a user's cooldown"),
		)
	}
	return b.sendMarkdown(msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

// handleProfile shows points, messages and achievements
func (b *Bot) handleProfile(ctx context.Context, msg *tgbotapi.Message) error {
	profile, err := b.Rewards.Profile(ctx, msg.From.ID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}

	text := fmt.Sprintf(
		"👤 Profile: %s\n🆔 ID: %d\n⭐ Points: %d\n✉️ Messages: %d\n🏆 Achievements: %d",
		firstNameOr(msg.From, "User"),
		profile.User.ID,
		profile.User.Points,
		profile.User.MessageCount,
		profile.Achievements,
	)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("View Achievements", fmt.Sprintf("%s%d", achievementsPrefix, msg.From.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Claim Daily", callbackDaily),
		),
	)

	return b.sendMarkdown(msg.Chat.ID, esc(text), keyboard)
}

// handleDaily handles the /daily command
func (b *Bot) handleDaily(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.claimDaily(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	return b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) claimDaily(ctx context.Context, userID int64) (string, error) {
	result, err := b.Rewards.ClaimDaily(ctx, userID)
	if errors.Is(err, service.ErrDailyAlreadyClaimed) {
		return fmt.Sprintf("⏳ Come back in %d hours to claim your next reward!", hoursLeft(result)), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to claim daily reward: %w", err)
	}

	text := fmt.Sprintf("🎁 Daily Reward Claimed!\n\n+%d points", result.Points)
	if result.Achievement != nil {
		text += "\n\n" + newAchievementText(result.Achievement)
	}
	return text, nil
}

// handleLeaderboard shows the top users by points
func (b *Bot) handleLeaderboard(ctx context.Context, msg *tgbotapi.Message) error {
	users, err := b.Rewards.Leaderboard(ctx)
	if err != nil {
		return fmt.Errorf("failed to load leaderboard: %w", err)
	}

	if len(users) == 0 {
		return b.sendMessage(msg.Chat.ID, "🏆 No users on the leaderboard yet! Be the first!")
	}

	lines := []string{fmt.Sprintf("🏆 *Top %d Users*", len(users))}
	for i, u := range users {
		lines = append(lines, esc(fmt.Sprintf("%d. %s: %d points", i+1, u.DisplayName(), u.Points)))
	}

	return b.sendMarkdown(msg.Chat.ID, strings.Join(lines, "\n"), nil)
}

// handleAchievements lists the caller's badges
func (b *Bot) handleAchievements(ctx context.Context, msg *tgbotapi.Message) error {
	text, err := b.achievementsText(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	return b.sendMarkdown(msg.Chat.ID, text, nil)
}

func (b *Bot) achievementsText(ctx context.Context, userID int64) (string, error) {
	achievements, err := b.Rewards.Achievements(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load achievements: %w", err)
	}

	if len(achievements) == 0 {
		return esc("You haven't earned any achievements yet!"), nil
	}

	lines := []string{"🏆 *Your Achievements*"}
	for _, a := range achievements {
		lines = append(lines, esc(fmt.Sprintf("• %s - %s", a.Name, a.EarnedDate.Format("2006-01-02"))))
	}
	return strings.Join(lines, "\n"), nil
}

func newAchievementText(a *service.AchievementRule) string {
	return fmt.Sprintf("🏆 New Achievement!\n%s: %s", a.Name, a.Description)
}

func hoursLeft(result *service.DailyResult) int {
	if result == nil {
		return 24
	}
	hours := int(math.Ceil(result.Remaining.Hours()))
	if hours < 1 {
		return 1
	}
	return hours
}

func identityOf(u *tgbotapi.User) domain.Identity {
	return domain.Identity{
		ID:        u.ID,
		Username:  optional(u.UserName),
		FirstName: optional(u.FirstName),
		LastName:  optional(u.LastName),
	}
}

// optional maps an empty field to "unknown"
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNameOr(u *tgbotapi.User, fallback string) string {
	if u == nil || u.FirstName == "" {
		return fallback
	}
	return u.FirstName
}
