package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Agafia/bot-fire-water-sources/internal/messaging"
	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// choicesPerRow keeps short value lists on one row; longer labels get one
// button per row so they stay readable on narrow screens.
const choicesPerRow = 3

// choiceKeyboard renders single-choice step values as callback buttons. The
// callback payload is the value itself, so validation happens against the same
// string the operator saw.
func choiceKeyboard(choices []string) tgbotapi.InlineKeyboardMarkup {
	perRow := choicesPerRow
	if longestLabel(choices) > 20 {
		perRow = 1
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, choice := range choices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(choice, choice))
		if len(row) == perRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// linkKeyboard renders one URL button per link plus a dismiss button.
func linkKeyboard(links []models.Link) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, link := range links {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(link.Label, link.URL)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Удалить сообщение", messaging.DismissCallback)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func longestLabel(choices []string) int {
	longest := 0
	for _, choice := range choices {
		if len([]rune(choice)) > longest {
			longest = len([]rune(choice))
		}
	}
	return longest
}
