package bot

import (
	"context"
	"fmt"
	"math"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const adminOnlyReply = "⚠️ Unauthorized access. Admin only."

// Decision is a guard's verdict. Reply is sent when Allow is false.
type Decision struct {
	Allow bool
	Reply string
}

// Guard runs before a handler and may stop it
type Guard func(ctx context.Context, msg *tgbotapi.Message) Decision

var allow = Decision{Allow: true}

// requireAdmin allows only configured admins
func (b *Bot) requireAdmin(_ context.Context, msg *tgbotapi.Message) Decision {
	if msg.From != nil && b.Config.IsAdmin(msg.From.ID) {
		return allow
	}
	return Decision{Reply: adminOnlyReply}
}

// rateLimited enforces the per-user cooldown
func (b *Bot) rateLimited(ctx context.Context, msg *tgbotapi.Message) Decision {
	d := b.Limiter.Check(msg.From.ID)
	if d.Allowed {
		return allow
	}

	b.Metrics.IncRateLimited()
	loggerFrom(ctx, b.Logger).Debug("Rate limited", "retry_after", d.RetryAfter)

	seconds := int(math.Ceil(b.Limiter.Cooldown().Seconds()))
	return Decision{Reply: fmt.Sprintf("⏳ Please wait %d seconds between messages.", seconds)}
}

// runGuards returns the first denial, if any
func runGuards(ctx context.Context, msg *tgbotapi.Message, guards []Guard) Decision {
	for _, guard := range guards {
		if d := guard(ctx, msg); !d.Allow {
			return d
		}
	}
	return allow
}
