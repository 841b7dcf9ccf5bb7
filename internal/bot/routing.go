package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/dialog"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/lifecycle"
)

const helpText = "Команды:\n" +
	"/check КОД: карточка абонемента\n" +
	"/pass КОД УСЛУГА [НОМЕР]: отметить проход\n" +
	"/today: сводка за сегодня\n" +
	"/expiring [дней]: скоро заканчиваются\n" +
	"/help: помощь"

const adminHelpText = "\n\nАдминистратор:\n/suspend КОД, /resume КОД"

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	ctx, cancel := ctxTimeout(ctx)
	defer cancel()

	chatID := msg.Chat.ID
	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		_ = b.states.Reset(ctx, chatID)
		text := helpText
		if chatID == b.adminChat {
			text += adminHelpText
		}
		b.send(tgbotapi.NewMessage(chatID, text))

	case "check":
		if len(args) != 1 {
			b.send(tgbotapi.NewMessage(chatID, "Формат: /check КОД"))
			return
		}
		b.showCard(ctx, chatID, args[0])

	case "pass":
		if len(args) < 2 || len(args) > 3 {
			b.send(tgbotapi.NewMessage(chatID, "Формат: /pass КОД УСЛУГА [НОМЕР]"))
			return
		}
		svc, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || svc <= 0 {
			b.send(tgbotapi.NewMessage(chatID, "Услуга: положительное число."))
			return
		}
		plate := ""
		if len(args) == 3 {
			plate = args[2]
		}
		b.pass(ctx, chatID, operatorName(msg.From), args[0], svc, plate)

	case "today":
		b.showToday(ctx, chatID)

	case "expiring":
		days := access.ExpiringSoonDays
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				b.send(tgbotapi.NewMessage(chatID, "Формат: /expiring [дней]"))
				return
			}
			days = n
		}
		b.showExpiring(ctx, chatID, days)

	case "suspend", "resume":
		if chatID != b.adminChat {
			b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён"))
			return
		}
		if len(args) != 1 {
			b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Формат: /%s КОД", msg.Command())))
			return
		}
		b.changeStatus(ctx, chatID, msg.Command(), args[0])

	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
	}
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	cb := upd.CallbackQuery
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	if !b.permitted(chatID) {
		_ = b.answerCallback(cb, "Доступ запрещён", true)
		return
	}
	ctx, cancel := ctxTimeout(ctx)
	defer cancel()

	data := cb.Data
	switch {
	case data == "nav:cancel":
		_ = b.states.Reset(ctx, chatID)
		b.editTextAndClear(chatID, cb.Message.MessageID, "Отменено.")
		_ = b.answerCallback(cb, "", false)

	case strings.HasPrefix(data, "pass:"):
		parts := strings.Split(data, ":")
		if len(parts) != 3 {
			_ = b.answerCallback(cb, "Некорректная кнопка", true)
			return
		}
		svc, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			_ = b.answerCallback(cb, "Некорректная кнопка", true)
			return
		}
		_ = b.answerCallback(cb, "", false)
		b.pass(ctx, chatID, operatorName(cb.From), parts[1], svc, "")

	default:
		_ = b.answerCallback(cb, "Кнопка устарела", false)
	}
}

// pass отмечает проход; если плану нужен номер, а его нет: сначала спрашивает номер.
func (b *Bot) pass(ctx context.Context, chatID int64, operator, code string, serviceID int64, plate string) {
	if plate == "" && b.needsPlate(ctx, code, serviceID) {
		b.askPlate(ctx, chatID, code, serviceID)
		return
	}
	res, err := b.access.AuthorizeCode(ctx, code, access.Request{
		ServiceID: serviceID,
		Plate:     plate,
		Method:    ledger.MethodCode,
		Station:   station,
		Operator:  operator,
	})
	switch {
	case errors.Is(err, access.ErrCodeNotFound):
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Абонемент %s не найден.", code)))
		return
	case err != nil:
		b.log.Error("bot pass failed", "code", code, "service_id", serviceID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не получилось отметить проход, попробуйте ещё раз."))
		return
	}

	if res.Reason == access.ReasonPlateRequired {
		b.askPlate(ctx, chatID, code, serviceID)
		return
	}
	b.send(tgbotapi.NewMessage(chatID, formatResult(serviceID, res)))
}

// needsPlate: проход по этой услуге без номера заведомо получит отказ plate_required.
// Для неактивного абонемента номер не спрашиваем, отказ будет по статусу.
func (b *Bot) needsPlate(ctx context.Context, code string, serviceID int64) bool {
	sub, err := b.access.Lookup(ctx, code)
	if err != nil {
		return false
	}
	ov, err := b.access.Usage(ctx, sub.ID, b.access.Now())
	if err != nil || ov.Expired || !ov.Plan.PlateMode.RequiresPlate() {
		return false
	}
	_, ok := ov.Plan.Service(serviceID)
	return ok
}

func (b *Bot) askPlate(ctx context.Context, chatID int64, code string, serviceID int64) {
	if err := b.states.Set(ctx, chatID, dialog.StateAwaitPlate, dialog.Payload{"code": code, "service": serviceID}); err != nil {
		b.log.Error("bot dialog save failed", "chat_id", chatID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Ошибка, попробуйте ещё раз."))
		return
	}
	m := tgbotapi.NewMessage(chatID, "Для этого абонемента нужен номер машины. Введите номер:")
	m.ReplyMarkup = cancelKeyboard()
	b.send(m)
}

func (b *Bot) showCard(ctx context.Context, chatID int64, code string) {
	sub, err := b.access.Lookup(ctx, code)
	if errors.Is(err, access.ErrCodeNotFound) {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Абонемент %s не найден.", code)))
		return
	}
	if err != nil {
		b.log.Error("bot lookup failed", "code", code, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Ошибка поиска, попробуйте ещё раз."))
		return
	}
	ov, err := b.access.Usage(ctx, sub.ID, b.access.Now())
	if err != nil {
		b.log.Error("bot usage failed", "subscription_id", sub.ID, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Ошибка загрузки абонемента."))
		return
	}
	m := tgbotapi.NewMessage(chatID, formatCard(ov))
	if !ov.Expired && len(ov.Services) > 0 {
		m.ReplyMarkup = passKeyboard(sub.AccessCode, ov.Services)
	}
	b.send(m)
}

func (b *Bot) showToday(ctx context.Context, chatID int64) {
	st, err := b.access.Today(ctx, b.access.Now())
	if err != nil {
		b.log.Error("bot today failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось собрать сводку."))
		return
	}
	recent, err := b.access.Recent(ctx, b.access.Now(), 10)
	if err != nil {
		b.log.Error("bot recent failed", "err", err)
	}
	b.send(tgbotapi.NewMessage(chatID, formatDay(st, recent)))
}

func (b *Bot) showExpiring(ctx context.Context, chatID int64, days int) {
	subs, err := b.lifecycle.Expiring(ctx, b.access.Now(), days)
	if err != nil {
		b.log.Error("bot expiring failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось получить список."))
		return
	}
	if len(subs) == 0 {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("В ближайшие %d дн. ничего не заканчивается.", days)))
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Заканчиваются в ближайшие %d дн.:\n", days)
	for _, s := range subs {
		fmt.Fprintf(&sb, "• %s: до %s\n", s.AccessCode, s.ExpirationDate.Format("02.01.2006"))
	}
	b.send(tgbotapi.NewMessage(chatID, sb.String()))
}

func (b *Bot) changeStatus(ctx context.Context, chatID int64, cmd, code string) {
	sub, err := b.access.Lookup(ctx, code)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Абонемент %s не найден.", code)))
		return
	}
	if cmd == "suspend" {
		err = b.lifecycle.Suspend(ctx, sub.ID)
	} else {
		err = b.lifecycle.Resume(ctx, sub.ID)
	}
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Нельзя: абонемент в статусе %s.", statusText(sub.Status))))
	case err != nil:
		b.log.Error("bot status change failed", "subscription_id", sub.ID, "cmd", cmd, "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Ошибка, попробуйте ещё раз."))
	case cmd == "suspend":
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Абонемент %s приостановлен.", code)))
	default:
		b.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("Абонемент %s снова активен.", code)))
	}
}
