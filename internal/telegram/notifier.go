// Package telegram delivers room lifecycle notices to users who linked a
// Telegram chat, and runs the small bot that does the linking.
package telegram

import (
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/models"
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the package uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserDirectory looks up who to notify.
type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Notifier tells the reporter about a new claim and the claimer about its
// approval. Sends happen in the background; Wait blocks until they are done.
type Notifier struct {
	Bot   Sender
	Users UserDirectory
	Texts *localization.Localizer
	Lang  string

	wg sync.WaitGroup
}

func NewNotifier(bot Sender, users UserDirectory, texts *localization.Localizer, lang string) *Notifier {
	return &Notifier{Bot: bot, Users: users, Texts: texts, Lang: lang}
}

// NewBotAPI connects to Telegram with token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	slog.Info("telegram bot authorized", "account", bot.Self.UserName)
	return bot, nil
}

func (n *Notifier) RoomCreated(ctx context.Context, room models.ClaimRoom, item models.Item) {
	n.notify(ctx, item.ReporterID, "notify_room_created", item.Name, room.ID)
}

func (n *Notifier) RoomApproved(ctx context.Context, room models.ClaimRoom, item models.Item) {
	n.notify(ctx, room.ClaimerID, "notify_room_approved", item.Name, room.ID)
}

// Wait blocks until every queued notification has been attempted.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) notify(ctx context.Context, userID, key, itemName, roomID string) {
	// The request context may end before the send does.
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		user, err := n.Users.GetUserByID(ctx, userID)
		if err != nil {
			slog.DebugContext(ctx, "no user to notify", "user_id", userID, "error", err)
			return
		}
		if user.TelegramChatID == nil {
			return
		}

		lang := user.Language
		if lang == "" {
			lang = n.Lang
		}
		msg := tgbotapi.NewMessage(*user.TelegramChatID, n.Texts.Format(lang, key, itemName))
		if _, err := n.Bot.Send(msg); err != nil {
			slog.WarnContext(ctx, "telegram notification failed", "user_id", userID, "room_id", roomID, "error", err)
			return
		}
		slog.DebugContext(ctx, "telegram notification sent", "user_id", userID, "room_id", roomID, "key", key)
	}()
}
