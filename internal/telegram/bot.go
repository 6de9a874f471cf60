package telegram

import (
	"claimchat/backend/internal/localization"
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ChatLinker stores which Telegram chat belongs to which user.
type ChatLinker interface {
	LinkTelegramChat(ctx context.Context, userID string, chatID int64, language string) error
}

// LinkVerifier resolves a signed link token to the user it was issued for.
type LinkVerifier interface {
	ParseLink(token string) (string, error)
}

// BotService answers the /start command that connects a user to a chat. The
// argument is a link token from GET /me/telegram-link, never a bare user id.
type BotService struct {
	BotAPI   *tgbotapi.BotAPI
	Links    ChatLinker
	Verifier LinkVerifier
	Texts    *localization.Localizer
	Lang     string
}

func NewBotService(bot *tgbotapi.BotAPI, links ChatLinker, verifier LinkVerifier, texts *localization.Localizer, lang string) *BotService {
	return &BotService{BotAPI: bot, Links: links, Verifier: verifier, Texts: texts, Lang: lang}
}

// Run polls for updates until ctx is done.
func (s *BotService) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	defer s.BotAPI.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			reply := s.HandleCommand(ctx, update.Message)
			if reply == "" {
				continue
			}
			if _, err := s.BotAPI.Send(tgbotapi.NewMessage(update.Message.Chat.ID, reply)); err != nil {
				slog.WarnContext(ctx, "telegram reply failed", "chat_id", update.Message.Chat.ID, "error", err)
			}
		}
	}
}

// HandleCommand processes one command message and returns the reply text.
func (s *BotService) HandleCommand(ctx context.Context, msg *tgbotapi.Message) string {
	lang := languageOf(msg, s.Lang)

	switch msg.Command() {
	case "start":
		token := strings.TrimSpace(msg.CommandArguments())
		if token == "" {
			return s.Texts.GetString(lang, "telegram_link_usage")
		}
		userID, err := s.Verifier.ParseLink(token)
		if err != nil {
			slog.WarnContext(ctx, "telegram link token rejected", "chat_id", msg.Chat.ID, "error", err)
			return s.Texts.GetString(lang, "telegram_link_invalid")
		}
		if err := s.Links.LinkTelegramChat(ctx, userID, msg.Chat.ID, lang); err != nil {
			slog.WarnContext(ctx, "telegram link failed", "user_id", userID, "chat_id", msg.Chat.ID, "error", err)
			return s.Texts.GetString(lang, "telegram_link_failed")
		}
		slog.InfoContext(ctx, "telegram chat linked", "user_id", userID, "chat_id", msg.Chat.ID)
		return s.Texts.GetString(lang, "telegram_linked")
	default:
		return ""
	}
}

// languageOf picks a supported locale from the sender's client language.
func languageOf(msg *tgbotapi.Message, fallback string) string {
	if msg.From != nil && strings.HasPrefix(msg.From.LanguageCode, "uk") {
		return "uk"
	}
	if msg.From != nil && strings.HasPrefix(msg.From.LanguageCode, "en") {
		return "en"
	}
	return fallback
}
