package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/glebk/relay-bot/internal/config"
	"github.com/glebk/relay-bot/internal/dispatch"
	"github.com/glebk/relay-bot/internal/llm"
	"github.com/glebk/relay-bot/internal/metrics"
	"github.com/glebk/relay-bot/internal/ratelimit"
	"github.com/glebk/relay-bot/internal/service"
)

const (
	unexpectedErrorReply = "⚠ An unexpected error occurred."
	commandErrorReply    = "⚠ Could not process command. Please try again later."
	relayErrorReply      = "⚠ Could not deliver the response. Please try again later."
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps are the collaborators a Bot is built from
type Deps struct {
	Config     *config.Config
	Limiter    *ratelimit.Limiter
	Recorder   *service.ActivityRecorder
	Rewards    *service.RewardService
	Admin      *service.AdminService
	Responder  *llm.Responder
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Bot represents the Telegram bot
type Bot struct {
	api telegramAPI
	Deps
	commands map[string]command
}

// New creates a new Bot instance
func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	deps.Logger.Info("Authorized on account", "username", api.Self.UserName)

	return newBot(api, deps), nil
}

func newBot(api telegramAPI, deps Deps) *Bot {
	b := &Bot{api: api, Deps: deps}
	b.commands = b.registry()
	return b
}

// Start receives updates until ctx is cancelled, then waits for in-flight handlers
func (b *Bot) Start(ctx context.Context) error {
	if err := b.setCommands(); err != nil {
		b.Logger.Warn("Failed to set bot commands", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	g := new(errgroup.Group)
	sem := semaphore.NewWeighted(int64(b.Config.MaxConcurrentUpdates))

	// handlers outlive the receive loop so shutdown does not abort them;
	// long-running ones watch ctx through interruptible
	handlerCtx := withShutdown(context.WithoutCancel(ctx), ctx)

	b.Logger.Info("Bot started", "max_concurrent_updates", b.Config.MaxConcurrentUpdates)

	for {
		select {
		case <-ctx.Done():
			return b.shutdown(g)
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				b.Logger.Warn("Dropping update received during shutdown", "update_id", update.UpdateID)
				return b.shutdown(g)
			}
			g.Go(func() error {
				defer sem.Release(1)
				b.handleUpdate(handlerCtx, update)
				return nil
			})
		}
	}
}

func (b *Bot) shutdown(g *errgroup.Group) error {
	b.Logger.Info("Bot shutting down...")
	b.api.StopReceivingUpdates()
	return g.Wait()
}

// handleUpdate routes one update and recovers from handler panics
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	log := b.Logger.With("request_id", uuid.NewString(), "update_id", update.UpdateID)
	if from := update.SentFrom(); from != nil {
		log = log.With("user_id", from.ID)
	}
	ctx = withLogger(ctx, log)

	chat := chatOf(update)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panicked", "panic", r, "stack", string(debug.Stack()))
			if chat != nil {
				_ = b.sendMessage(chat.ID, unexpectedErrorReply)
			}
		}
	}()

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		log.Error("Failed to handle update", "error", err)
		if chat != nil {
			_ = b.sendMessage(chat.ID, errorReply(update))
		}
	}
}

func errorReply(update tgbotapi.Update) string {
	if m := update.Message; m != nil && !m.IsCommand() {
		return relayErrorReply
	}
	return commandErrorReply
}

// setCommands publishes the command menu
func (b *Bot) setCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start the bot"},
		tgbotapi.BotCommand{Command: "help", Description: "Get help information"},
		tgbotapi.BotCommand{Command: "profile", Description: "View your profile"},
		tgbotapi.BotCommand{Command: "daily", Description: "Claim daily reward"},
		tgbotapi.BotCommand{Command: "leaderboard", Description: "Top users"},
		tgbotapi.BotCommand{Command: "achievements", Description: "Your achievements"},
	)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}
	return nil
}

// sendMessage sends a simple text message
func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// sendMarkdown sends a MarkdownV2 message; dynamic parts must be escaped with esc
func (b *Bot) sendMarkdown(chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// editMessage replaces the text of a message the bot sent earlier
func (b *Bot) editMessage(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := b.api.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(ctx context.Context, callbackID string, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		loggerFrom(ctx, b.Logger).Warn("Failed to answer callback", "error", err)
	}
}

// chatSender delivers response chunks to one chat
func (b *Bot) chatSender(chatID int64) dispatch.Sender {
	return dispatch.SenderFunc(func(_ context.Context, chunk string) error {
		msg := tgbotapi.NewMessage(chatID, chunk)
		msg.DisableWebPagePreview = true
		_, err := b.api.Send(msg)
		return err
	})
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

// chatOf is FromChat without the panic on callbacks from inline messages
func chatOf(update tgbotapi.Update) *tgbotapi.Chat {
	if q := update.CallbackQuery; q != nil {
		if q.Message == nil {
			return nil
		}
		return q.Message.Chat
	}
	return update.FromChat()
}

type shutdownKey struct{}

func withShutdown(ctx, shutdown context.Context) context.Context {
	return context.WithValue(ctx, shutdownKey{}, shutdown)
}

// interruptible derives a context that is also cancelled once the bot starts shutting down
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	shutdown, ok := ctx.Value(shutdownKey{}).(context.Context)
	if !ok {
		return ctx, cancel
	}
	stop := context.AfterFunc(shutdown, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}
