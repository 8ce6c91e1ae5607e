package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/picsave/plugin/chat_apps"
	"github.com/hrygo/picsave/plugin/chat_apps/channels"
	"github.com/hrygo/picsave/server/service/media"
	"github.com/hrygo/picsave/store"
)

const (
	textUnsupportedSticker = "В данный момент возможно сохранение только обычных, неанимированных стикеров"
	textRemoved            = "Изображение удалено!"
	textHelp               = "Чтобы начать работу, отправьте боту картинку или стикер, и бот её сохранит. " +
		"После этого бот объяснит, как искать и отправлять сохранённые пикчи и стикеры."
	textUnknownError = "Произошла неизвестная ошибка. Попробуйте ещё раз позже."
	textBusy         = "Это изображение уже обрабатывается, попробуйте ещё раз."

	howToUseID = "howtouse"
)

// HandleUpdate dispatches one update. Failures are logged and, when a user
// is known, answered with a generic error message.
func (t *TelegramChannel) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		err  error
		user *tgbotapi.User
	)
	switch {
	case update.Message != nil:
		user = update.Message.From
		err = t.handleMessage(ctx, update.Message)
	case update.InlineQuery != nil:
		user = update.InlineQuery.From
		err = t.handleInlineQuery(ctx, update.InlineQuery)
	case update.ChosenInlineResult != nil:
		user = update.ChosenInlineResult.From
		err = t.handleChosenResult(ctx, update.ChosenInlineResult)
	default:
		return
	}
	if err == nil || user == nil {
		return
	}

	slog.Error("telegram: failed to handle update", "update_id", update.UpdateID, "user_id", user.ID, "error", err)
	text := textUnknownError
	if errors.Is(err, media.ErrConcurrentSubmission) {
		text = textBusy
	}
	if sendErr := t.client.send(ctx, tgbotapi.NewMessage(user.ID, text)); sendErr != nil {
		slog.Warn("telegram: failed to report error", "user_id", user.ID, "error", sendErr)
	}
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	in := ParseMedia(msg)
	switch {
	case in.Type == chat_apps.MessageTypeUnsupportedSticker:
		return t.reply(ctx, msg, textUnsupportedSticker, "")
	case in.Type.IsMedia():
		return t.handleMedia(ctx, msg, in)
	case in.Type == chat_apps.MessageTypeCommand && msg.Command() == "reindex" && t.isAdmin(msg.Chat):
		return t.handleReindex(ctx, msg)
	default:
		return t.client.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, textHelp))
	}
}

func (t *TelegramChannel) handleMedia(ctx context.Context, msg *tgbotapi.Message, in *chat_apps.IncomingMedia) error {
	kind := mediaKind(in.Type)
	result, err := t.service.Ingest(ctx, &media.Submission{
		OwnerID:     msg.From.ID,
		Fingerprint: in.UniqueID,
		ContentRef:  in.FileID,
		Kind:        kind,
		// Downloaded only when the media is saved, never on removal.
		Load: func(ctx context.Context) ([]byte, error) {
			return t.client.fetch(ctx, in.DownloadID, kind)
		},
	})
	if errors.Is(err, channels.ErrUnsupportedMedia) {
		return t.reply(ctx, msg, textUnsupportedSticker, "")
	}
	if err != nil {
		return err
	}
	if result.Outcome == media.OutcomeRemoved {
		return t.reply(ctx, msg, textRemoved, "")
	}
	return t.reply(ctx, msg, t.savedText(), tgbotapi.ModeMarkdownV2)
}

func (t *TelegramChannel) savedText() string {
	mention := tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, "@"+t.client.username)
	usage := fmt.Sprintf("`%s \\[описание изображения по\\-русски\\]`", mention)
	return "Ваше изображение/стикер сохранено\\!\n\n" +
		"Теперь вы можете найти и отправить его, написав " + usage + " в любом чате\\.\n\n" +
		"А чтобы его удалить, отправьте его ещё раз с помощью " + usage + "\\."
}

func (t *TelegramChannel) isAdmin(chat *tgbotapi.Chat) bool {
	return chat != nil && t.config.AdminChatID != 0 && chat.ID == t.config.AdminChatID
}

func (t *TelegramChannel) handleReindex(ctx context.Context, msg *tgbotapi.Message) error {
	if err := t.client.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, "Reindex started")); err != nil {
		return err
	}
	report, err := t.service.Reindex(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Reindex %s finished in %s: %d of %d reindexed, %d skipped, %d failed",
		report.RunID, report.Duration.Round(time.Millisecond), report.Reindexed, report.Total, report.Skipped, len(report.Failures))
	return t.client.send(ctx, tgbotapi.NewMessage(msg.Chat.ID, text))
}

func (t *TelegramChannel) reply(ctx context.Context, msg *tgbotapi.Message, text, parseMode string) error {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.ParseMode = parseMode
	return t.client.send(ctx, out)
}

func (t *TelegramChannel) handleInlineQuery(ctx context.Context, query *tgbotapi.InlineQuery) error {
	if query.From == nil {
		return nil
	}
	page, err := t.service.Search(ctx, &media.Query{
		OwnerID: query.From.ID,
		Text:    query.Query,
		Offset:  query.Offset,
	})
	if errors.Is(err, media.ErrInvalidCursor) {
		// A cursor we never issued; answer with an empty page.
		page, err = &media.Page{}, nil
	}
	if err != nil {
		return err
	}

	answer := tgbotapi.InlineConfig{
		InlineQueryID: query.ID,
		IsPersonal:    true,
		CacheTime:     0,
		NextOffset:    page.NextOffset,
		Results:       make([]any, 0, len(page.Results)),
	}
	for _, r := range page.Results {
		id := strconv.FormatInt(r.ID, 10)
		switch r.Kind {
		case store.MediaKindSticker:
			answer.Results = append(answer.Results, tgbotapi.NewInlineQueryResultCachedSticker(id, r.ContentRef, ""))
		case store.MediaKindVideo:
			answer.Results = append(answer.Results, tgbotapi.NewInlineQueryResultCachedVideo(id, r.ContentRef, "video"))
		default:
			answer.Results = append(answer.Results, tgbotapi.NewInlineQueryResultCachedPhoto(id, r.ContentRef))
		}
	}
	if page.NoMatches {
		t.fillHowToUse(&answer)
	}
	return t.client.request(ctx, answer)
}

// fillHowToUse replaces an empty first page with an article pointing at the bot.
func (t *TelegramChannel) fillHowToUse(answer *tgbotapi.InlineConfig) {
	mention := "@" + t.client.username
	article := tgbotapi.NewInlineQueryResultArticle(howToUseID, "Напишите боту "+mention, "https://t.me/"+t.client.username)
	article.Description = "Напишите боту " + mention + ", чтобы начать работу"
	answer.Results = []any{article}
	answer.SwitchPMText = "Чтобы начать работу, сохраните в " + mention + " несколько изображений"
	answer.SwitchPMParameter = howToUseID
	answer.NextOffset = ""
}

func (t *TelegramChannel) handleChosenResult(ctx context.Context, chosen *tgbotapi.ChosenInlineResult) error {
	if chosen.From == nil {
		return nil
	}
	_, err := t.service.Select(ctx, &media.Selection{OwnerID: chosen.From.ID, ResultID: chosen.ResultID})
	return err
}
