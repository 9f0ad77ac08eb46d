package push

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/dmarian/price-watch/internal/models"
)

type Telegram struct {
	API      *tgbotapi.BotAPI
	resolver ChatResolver
}

func NewTelegram(token string, resolver ChatResolver) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &Telegram{
		API:      bot,
		resolver: resolver,
	}, nil
}

// Send delivers the notification text to the user's linked chat. The
// structured payload is ignored; Telegram messages carry only the
// rendered title and body.
func (t *Telegram) Send(ctx context.Context, userID, title, body string, _ models.NotificationData) error {
	chatID, ok, err := t.resolver.ChatIDForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve chat for user %s: %v", userID, err)
	}
	if !ok {
		return fmt.Errorf("no device registered for user %s", userID)
	}

	message := fmt.Sprintf("*%s*\n%s", escapeMarkdown(title), escapeMarkdown(body))
	msg := tgbotapi.NewMessage(chatID, message)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	if _, err := t.API.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %v", err)
	}

	return nil
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"(", "\\(",
		")", "\\)",
		"~", "\\~",
		"`", "\\`",
		">", "\\>",
		"#", "\\#",
		"+", "\\+",
		"-", "\\-",
		"=", "\\=",
		"|", "\\|",
		"{", "\\{",
		"}", "\\}",
		".", "\\.",
		"!", "\\!",
	)
	return replacer.Replace(text)
}
