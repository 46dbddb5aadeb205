// Package bot provides the optional Telegram entry point: a minimal
// bot whose /start reply links users into the web chat client.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"
)

// Bot wraps the telebot instance.
type Bot struct {
	bot       *tele.Bot
	webAppURL string
	log       zerolog.Logger
}

// New creates the entry bot. token must be non-empty; callers skip the
// bot entirely when no token is configured.
func New(token, webAppURL string, log zerolog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:       teleBot,
		webAppURL: webAppURL,
		log:       log.With().Str("component", "bot").Logger(),
	}
	b.registerHandlers()
	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", func(c tele.Context) error {
		b.log.Debug().Int64("telegram_id", c.Sender().ID).Msg("/start")

		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(markup.WebApp("Open chat", &tele.WebApp{URL: b.webAppURL})))
		return c.Send("Welcome! Tap below to find someone to talk to.", markup)
	})
}

// Start begins long polling. Blocks until Stop is called.
func (b *Bot) Start() {
	b.log.Info().Msg("bot is starting")
	b.bot.Start()
}

// Stop stops the poller.
func (b *Bot) Stop() {
	b.bot.Stop()
	b.log.Info().Msg("bot stopped")
}
