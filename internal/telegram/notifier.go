package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"mexc-volume-bot/internal/types"
	"mexc-volume-bot/lib/helpers"
	"mexc-volume-bot/lib/translation"
)

// Notifier delivers volume alerts to chats.
type Notifier struct {
	sender Sender
}

func NewNotifier(sender Sender) *Notifier {
	return &Notifier{sender: sender}
}

// FormatNotification renders the MarkdownV2 body of a fired alert.
func FormatNotification(a types.Alert, volume int64) string {
	return fmt.Sprintf(
		translation.Translate("volume_alert_format"),
		helpers.EscapeMarkdownV2(a.Symbol),
		a.Interval,
		helpers.FormatVolumeEscaped(a.Threshold),
		helpers.FormatVolumeEscaped(volume),
	)
}

func (n *Notifier) NotifyVolume(ctx context.Context, chatID int64, a types.Alert, volume int64) error {
	msg := tgbotapi.NewMessage(chatID, FormatNotification(a, volume))
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = NotificationKeyboard(a)

	if _, err := n.sender.Send(ctx, msg); err != nil {
		return errors.Wrapf(err, "could not notify chat %d about %s", chatID, a.Symbol)
	}
	return nil
}
