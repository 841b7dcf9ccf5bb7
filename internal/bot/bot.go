// Package bot: консоль оператора в Telegram: проверка абонемента и ручной проход.
package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/dialog"
	"github.com/Spok95/subgate/internal/lifecycle"
)

// station: так проходы из бота подписаны в журнале.
const station = "telegram"

type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	api       messenger
	updates   func(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	log       *slog.Logger
	access    *access.Service
	lifecycle *lifecycle.Service
	states    *dialog.Repo
	adminChat int64
	allowed   map[int64]bool
}

func New(api *tgbotapi.BotAPI, log *slog.Logger,
	accessSvc *access.Service, lifecycleSvc *lifecycle.Service,
	states *dialog.Repo, adminChatID int64, allowedChats []int64) *Bot {

	return newBot(api, api.GetUpdatesChan, log, accessSvc, lifecycleSvc, states, adminChatID, allowedChats)
}

func newBot(api messenger, updates func(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel, log *slog.Logger,
	accessSvc *access.Service, lifecycleSvc *lifecycle.Service,
	states *dialog.Repo, adminChatID int64, allowedChats []int64) *Bot {

	allowed := make(map[int64]bool, len(allowedChats)+1)
	for _, id := range allowedChats {
		allowed[id] = true
	}
	if adminChatID != 0 {
		allowed[adminChatID] = true
	}
	return &Bot{
		api: api, updates: updates, log: log,
		access: accessSvc, lifecycle: lifecycleSvc, states: states,
		adminChat: adminChatID, allowed: allowed,
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.updates(u)
	b.log.Info("telegram bot started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd)
			}
		}
	}
}

// permitted: пустой список разрешённых чатов пускает всех.
func (b *Bot) permitted(chatID int64) bool {
	return len(b.allowed) == 0 || b.allowed[chatID]
}

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if !b.permitted(msg.Chat.ID) {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Доступ запрещён"))
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	st, err := b.states.Get(ctx, msg.Chat.ID)
	if err != nil {
		b.log.Error("bot dialog load failed", "chat_id", msg.Chat.ID, "err", err)
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Ошибка, попробуйте ещё раз."))
		return
	}
	switch st.State {
	case dialog.StateAwaitPlate:
		code, _ := dialog.GetString(st.Payload, "code")
		svc, _ := dialog.GetInt64(st.Payload, "service")
		_ = b.states.Reset(ctx, msg.Chat.ID)
		b.pass(ctx, msg.Chat.ID, operatorName(msg.From), code, svc, msg.Text)
	default:
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "Не понял. Наберите /help"))
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func operatorName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

func ctxTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 10*time.Second)
}
