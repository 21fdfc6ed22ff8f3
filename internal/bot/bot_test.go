package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebk/relay-bot/internal/config"
	"github.com/glebk/relay-bot/internal/dispatch"
	"github.com/glebk/relay-bot/internal/llm"
	"github.com/glebk/relay-bot/internal/logger"
	"github.com/glebk/relay-bot/internal/metrics"
	"github.com/glebk/relay-bot/internal/ratelimit"
	"github.com/glebk/relay-bot/internal/repository/sqlite"
	"github.com/glebk/relay-bot/internal/service"
)

const (
	adminID = int64(1)
	aliceID = int64(100)
	bobID   = int64(200)
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failChat map[int64]bool
	failText map[string]bool
	updates  chan tgbotapi.Update
	stopped  atomic.Bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failChat: map[int64]bool{}, failText: map[string]bool{}, updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && (f.failChat[m.ChatID] || f.failText[m.Text]) {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopped.Store(true)
}

// texts returns the text of every message sent to chatID
func (f *fakeAPI) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// count returns how many messages with exactly this text were sent
func (f *fakeAPI) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.Text == text {
			n++
		}
	}
	return n
}

func (f *fakeAPI) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.requests {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e)
		}
	}
	return out
}

type fakeGenerator struct {
	calls atomic.Int32
	reply func(prompt string) string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	return g.reply(prompt), nil
}

type harness struct {
	bot   *Bot
	api   *fakeAPI
	gen   *fakeGenerator
	users *sqlite.UserRepository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		AdminUserIDs:         []int64{adminID},
		RateLimit:            config.RateLimit{Cooldown: 5 * time.Second, IdleTTL: 10 * time.Minute, SweepInterval: 5 * time.Minute},
		LLMTimeout:           time.Second,
		MaxMessageLength:     dispatch.DefaultLimit,
		DailyRewardPoints:    10,
		LeaderboardSize:      10,
		MaxConcurrentUpdates: 4,
	}

	limiter, err := ratelimit.New(cfg.RateLimit.Cooldown)
	require.NoError(t, err)
	dispatcher, err := dispatch.New(cfg.MaxMessageLength)
	require.NoError(t, err)

	users := sqlite.NewUserRepository(db)
	achievements := sqlite.NewAchievementRepository(db)
	logs := sqlite.NewMessageLogRepository(db)
	m := metrics.New()
	log := logger.Discard()
	gen := &fakeGenerator{reply: func(p string) string { return "echo: " + p }}

	api := newFakeAPI()
	b := newBot(api, Deps{
		Config:     cfg,
		Limiter:    limiter,
		Recorder:   service.NewActivityRecorder(users, logs, m, log),
		Rewards:    service.NewRewardService(users, achievements, logs, int64(cfg.DailyRewardPoints), cfg.LeaderboardSize),
		Admin:      service.NewAdminService(users),
		Responder:  llm.NewResponder(gen, cfg.LLMTimeout, m, log),
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     log,
	})

	return &harness{bot: b, api: api, gen: gen, users: users}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: userID, FirstName: "Alice", UserName: "alice"},
			Chat:      &tgbotapi.Chat{ID: userID},
			Text:      text,
		},
	}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	u := textUpdate(userID, text)
	name := strings.Fields(text)[0]
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return u
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: userID},
			Message: &tgbotapi.Message{
				MessageID: 42,
				Chat:      &tgbotapi.Chat{ID: userID},
			},
			Data: data,
		},
	}
}

func (h *harness) handle(u tgbotapi.Update) {
	h.bot.handleUpdate(context.Background(), u)
}

func TestTextBurst_OnlyFirstReachesModel(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.handle(textUpdate(aliceID, "hello"))
		}()
	}
	wg.Wait()

	user, err := h.users.GetByID(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.MessageCount)
	assert.Equal(t, int32(1), h.gen.calls.Load())

	texts := h.api.texts(aliceID)
	notices := 0
	for _, txt := range texts {
		if txt == "⏳ Please wait 5 seconds between messages." {
			notices++
		}
	}
	assert.Equal(t, 2, notices)
	assert.Contains(t, texts, "echo: hello")
}

func TestLongReplyIsChunked(t *testing.T) {
	h := newHarness(t)
	h.gen.reply = func(string) string { return strings.Repeat("x", 8000) }

	h.handle(textUpdate(aliceID, "write a lot"))

	var chunks []string
	for _, txt := range h.api.texts(aliceID) {
		if strings.HasPrefix(txt, "x") {
			chunks = append(chunks, txt)
		}
	}
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 4000)
	assert.Len(t, chunks[1], 4000)
}

func TestFirstMessageEarnsChatStarter(t *testing.T) {
	h := newHarness(t)

	h.handle(textUpdate(aliceID, "hi"))

	assert.Contains(t, h.api.texts(aliceID), "🏆 New Achievement!\nChat Starter: Send your first message")
}

func TestCommandsAreNotRateLimited(t *testing.T) {
	h := newHarness(t)

	h.handle(commandUpdate(aliceID, "/start"))
	h.handle(commandUpdate(aliceID, "/start"))
	h.handle(textUpdate(aliceID, "hello"))

	assert.Equal(t, int32(1), h.gen.calls.Load())
	user, err := h.users.GetByID(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.MessageCount)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)

	h.handle(commandUpdate(aliceID, "/dance"))

	assert.Equal(t, []string{"Unknown command. Use /help"}, h.api.texts(aliceID))
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	h.handle(textUpdate(aliceID, "hi"))

	for _, cmd := range []string{"/admin", "/users", "/stats", "/broadcast hey", "/resetlimit 5"} {
		h.handle(commandUpdate(bobID, cmd))
	}

	texts := h.api.texts(bobID)
	require.Len(t, texts, 5)
	for _, txt := range texts {
		assert.Equal(t, adminOnlyReply, txt)
	}
	assert.Empty(t, h.api.texts(aliceID)[2:], "non-admin broadcast must not reach users")
}

func TestAdminUsersAndStats(t *testing.T) {
	h := newHarness(t)
	h.handle(textUpdate(aliceID, "hi"))

	h.handle(commandUpdate(adminID, "/users"))
	h.handle(commandUpdate(adminID, "/stats"))

	texts := h.api.texts(adminID)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "100 - alice")
	assert.Contains(t, texts[1], "Total Users: `2`")
}

func TestBroadcast(t *testing.T) {
	prev := broadcastInterval
	broadcastInterval = 0
	t.Cleanup(func() { broadcastInterval = prev })

	h := newHarness(t)
	h.handle(commandUpdate(aliceID, "/start"))
	h.handle(commandUpdate(bobID, "/start"))
	h.api.failChat[bobID] = true

	h.handle(commandUpdate(adminID, "/broadcast maintenance at noon"))

	assert.Contains(t, h.api.texts(aliceID), "maintenance at noon")
	assert.Contains(t, h.api.texts(adminID), "📢 Broadcast finished: 2 delivered, 1 failed.")
}

func TestResetLimit(t *testing.T) {
	h := newHarness(t)

	h.handle(textUpdate(aliceID, "one"))
	h.handle(commandUpdate(adminID, "/resetlimit 100"))
	h.handle(textUpdate(aliceID, "two"))

	assert.Equal(t, int32(2), h.gen.calls.Load())
	assert.Contains(t, h.api.texts(adminID), "✅ Cooldown cleared for user 100.")
}

func TestDailyCommand(t *testing.T) {
	h := newHarness(t)

	h.handle(commandUpdate(aliceID, "/daily"))
	h.handle(commandUpdate(aliceID, "/daily"))

	texts := h.api.texts(aliceID)
	require.Len(t, texts, 2)
	assert.True(t, strings.HasPrefix(texts[0], "🎁 Daily Reward Claimed!\n\n+10 points"))
	assert.Contains(t, texts[0], "Chat Starter")
	assert.Equal(t, "⏳ Come back in 24 hours to claim your next reward!", texts[1])

	user, err := h.users.GetByID(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), user.Points)
}

func TestCallbacks(t *testing.T) {
	h := newHarness(t)
	h.handle(commandUpdate(aliceID, "/daily"))

	h.handle(callbackUpdate(aliceID, "achievements_100"))
	h.handle(callbackUpdate(aliceID, callbackBotStats))
	h.handle(callbackUpdate(adminID, callbackBotStats))

	edits := h.api.edits()
	require.Len(t, edits, 3)
	assert.Contains(t, edits[0].Text, "Chat Starter")
	assert.Equal(t, esc(adminPanelDenied), edits[1].Text)
	assert.Contains(t, edits[2].Text, "Bot Statistics")
}

func TestPanicIsRecovered(t *testing.T) {
	h := newHarness(t)
	h.gen.reply = func(string) string { panic("boom") }

	assert.NotPanics(t, func() { h.handle(textUpdate(aliceID, "hi")) })
	assert.Contains(t, h.api.texts(aliceID), unexpectedErrorReply)
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Start(ctx) }()

	h.api.updates <- commandUpdate(aliceID, "/start")
	require.Eventually(t, func() bool { return len(h.api.texts(aliceID)) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, h.api.stopped.Load())

	h.api.mu.Lock()
	defer h.api.mu.Unlock()
	require.NotEmpty(t, h.api.requests)
	_, ok := h.api.requests[0].(tgbotapi.SetMyCommandsConfig)
	assert.True(t, ok)
}

func startBot(t *testing.T, h *harness) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- h.bot.Start(ctx) }()
	return cancel, done
}

func TestBroadcastStopsOnShutdown(t *testing.T) {
	prev := broadcastInterval
	broadcastInterval = 300 * time.Millisecond
	t.Cleanup(func() { broadcastInterval = prev })

	h := newHarness(t)
	for id := int64(1000); id < 1010; id++ {
		require.NoError(t, h.users.RecordActivity(context.Background(), identityOf(&tgbotapi.User{ID: id})))
	}

	cancel, done := startBot(t, h)
	h.api.updates <- commandUpdate(adminID, "/broadcast hi")
	require.Eventually(t, func() bool { return h.api.count("hi") >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("broadcast kept Start from returning")
	}

	assert.Less(t, h.api.count("hi"), 11)
	texts := h.api.texts(adminID)
	require.NotEmpty(t, texts)
	assert.True(t, strings.HasPrefix(texts[len(texts)-1], "📢 Broadcast interrupted:"), texts[len(texts)-1])
}

func TestSaturatedLoopHonorsShutdown(t *testing.T) {
	h := newHarness(t)
	h.bot.Config.MaxConcurrentUpdates = 1

	release := make(chan struct{})
	h.gen.reply = func(string) string {
		<-release
		return "ok"
	}

	cancel, done := startBot(t, h)
	h.api.updates <- textUpdate(aliceID, "one")
	h.api.updates <- textUpdate(bobID, "two")
	require.Eventually(t, func() bool { return h.gen.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, h.api.stopped.Load, 2*time.Second, 10*time.Millisecond)
	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	assert.Equal(t, int32(1), h.gen.calls.Load())
	assert.Contains(t, h.api.texts(aliceID), "ok")
}

func TestNonTextMessagesAreIgnored(t *testing.T) {
	h := newHarness(t)
	sticker := textUpdate(aliceID, "")
	sticker.Message.Sticker = &tgbotapi.Sticker{FileID: "sticker"}

	h.handle(sticker)

	_, err := h.users.GetByID(context.Background(), aliceID)
	assert.Error(t, err)
	assert.Empty(t, h.api.texts(aliceID))
	assert.Zero(t, h.gen.calls.Load())
}

func TestRelayFailureReply(t *testing.T) {
	h := newHarness(t)
	h.gen.reply = func(string) string { return "undeliverable" }
	h.api.failText["undeliverable"] = true

	h.handle(textUpdate(aliceID, "hi"))

	texts := h.api.texts(aliceID)
	assert.Contains(t, texts, relayErrorReply)
	assert.NotContains(t, texts, commandErrorReply)
}

func TestHelpShowsDailyPoints(t *testing.T) {
	h := newHarness(t)

	h.handle(commandUpdate(aliceID, "/help"))

	texts := h.api.texts(aliceID)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Claim 10 daily points")
}
