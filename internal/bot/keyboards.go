package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/subgate/internal/access"
)

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"),
	))
}

// passKeyboard по кнопке на каждую услугу с остатком.
func passKeyboard(code string, services []access.ServiceUsage) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, s := range services {
		if s.Remaining <= 0 {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("✅ Проход: услуга %d", s.ServiceID),
				fmt.Sprintf("pass:%s:%d", code, s.ServiceID)),
		))
	}
	rows = append(rows, cancelKeyboard().InlineKeyboard[0])
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
