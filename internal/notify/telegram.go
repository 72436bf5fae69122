package notify

import (
	"fmt"
	"sync/atomic"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Telegram pushes admin notifications to a Telegram chat. Everything is
// best-effort: errors are logged and swallowed, a failed message never
// fails the transition that triggered it.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID atomic.Int64
	log    zerolog.Logger
}

func NewTelegram(token string, adminChatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	t := &Telegram{bot: bot, log: log}
	t.chatID.Store(adminChatID)
	log.Info().Str("account", bot.Self.UserName).Msg("bot de Telegram autorizado")

	// If no chat id was configured, capture it from the admin's /start.
	if adminChatID == 0 {
		go t.listenForStart()
	}

	return t, nil
}

func (t *Telegram) listenForStart() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	for update := range t.bot.GetUpdatesChan(u) {
		if update.Message == nil || !update.Message.IsCommand() {
			continue
		}
		if update.Message.Command() != "start" {
			continue
		}

		chatID := update.Message.Chat.ID
		t.chatID.Store(chatID)
		t.log.Info().Int64("chat_id", chatID).Msg("admin chat registrado")

		msg := tgbotapi.NewMessage(chatID,
			fmt.Sprintf("¡Hola Admin! Tu ID ha sido registrado: %d. Ahora recibirás notificaciones aquí.", chatID))
		if _, err := t.bot.Send(msg); err != nil {
			t.log.Warn().Err(err).Msg("no se pudo responder al /start")
		}
	}
}

func (t *Telegram) NotifyAdmin(text string) {
	chatID := t.chatID.Load()
	if chatID == 0 {
		t.log.Debug().Msg("admin chat desconocido, notificación descartada")
		return
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.log.Warn().Err(err).Msg("error enviando notificación")
	}
}
