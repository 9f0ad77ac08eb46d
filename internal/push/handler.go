package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmarian/price-watch/internal/store"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Handler answers bot commands so users can link their chat to the
// account their price alerts belong to.
type Handler struct {
	Bot   *Telegram
	store store.Store
}

func NewHandler(bot *Telegram, store store.Store) *Handler {
	return &Handler{
		Bot:   bot,
		store: store,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	var err error
	switch update.Message.Command() {
	case "start", "help":
		err = h.handleStart(update.Message)
	case "link":
		err = h.handleLink(ctx, update.Message)
	default:
		err = h.handleUnknown(update.Message)
	}

	if err != nil {
		reply := tgbotapi.NewMessage(update.Message.Chat.ID, fmt.Sprintf("Error: %v", err))
		_, _ = h.Bot.API.Send(reply)
	}

	return err
}

func (h *Handler) handleStart(message *tgbotapi.Message) error {
	text := `Welcome to Price Watch!

Available commands:
/link <user id> - Receive price drop alerts for this account in this chat
/help - Show this help message`

	reply := tgbotapi.NewMessage(message.Chat.ID, text)
	_, err := h.Bot.API.Send(reply)
	return err
}

func (h *Handler) handleLink(ctx context.Context, message *tgbotapi.Message) error {
	userID := strings.TrimSpace(message.CommandArguments())
	if userID == "" {
		return fmt.Errorf("usage: /link <user id>")
	}

	if err := h.store.RegisterDevice(ctx, userID, message.Chat.ID); err != nil {
		return err
	}

	reply := tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("Price drop alerts for %s will be delivered here.", userID))
	_, err := h.Bot.API.Send(reply)
	return err
}

func (h *Handler) handleUnknown(message *tgbotapi.Message) error {
	reply := tgbotapi.NewMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	_, err := h.Bot.API.Send(reply)
	return err
}
