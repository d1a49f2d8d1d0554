package gateway

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/danielohoh/sales-ai-agent/internal/service"
	"github.com/danielohoh/sales-ai-agent/internal/vision"
)

const (
	actionApprove = "approve"
	actionReject  = "reject"
)

// TelegramGateway serves the assistant over a Telegram bot. Plans are held
// by the service's approval gate and decided with inline buttons.
type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Service *service.Service
	Files   *http.Client
}

func NewTelegramGateway(token string, svc *service.Service) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:     bot,
		Service: svc,
		Files:   &http.Client{Timeout: 20 * time.Second},
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			tg.handleCallback(update.CallbackQuery)
		case update.Message != nil:
			tg.handleMessage(update.Message)
		}
	}
	return nil
}

func (tg *TelegramGateway) handleMessage(m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	ctx := context.Background()
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	userID := strconv.FormatInt(m.From.ID, 10)

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	log.Printf("[%s] %s", m.From.UserName, text)

	atts := tg.attachments(m)
	resp, err := tg.Service.Chat(ctx, chatID, userID, text, atts)
	if err != nil {
		log.Printf("Error handling message: %v", err)
		if resp == nil {
			_ = tg.Send(chatID, "Sorry, I couldn't process that message. Please try again.")
			return
		}
	}

	if resp.ActionPlan == nil {
		_ = tg.Send(chatID, resp.Content)
		return
	}

	id := resp.ActionPlan.PlanID
	msg := tgbotapi.NewMessage(m.Chat.ID, resp.Content+"\n\n"+FormatPlan(resp.ActionPlan))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Approve", callbackData(actionApprove, id)),
		tgbotapi.NewInlineKeyboardButtonData("Reject", callbackData(actionReject, id)),
	))
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("Error sending plan: %v", err)
	}
}

func (tg *TelegramGateway) handleCallback(q *tgbotapi.CallbackQuery) {
	action, planID, ok := parseCallbackData(q.Data)
	if !ok || q.Message == nil {
		_, _ = tg.Bot.Request(tgbotapi.NewCallback(q.ID, "Unknown action"))
		return
	}
	chatID := strconv.FormatInt(q.Message.Chat.ID, 10)
	userID := strconv.FormatInt(q.From.ID, 10)

	var reply string
	switch action {
	case actionApprove:
		a, err := tg.Service.Approve(context.Background(), planID, userID, nil)
		if err != nil {
			reply = "This plan can no longer be approved: " + err.Error()
		} else {
			reply = FormatResult(a.Result)
		}
	case actionReject:
		if _, err := tg.Service.Reject(planID, userID); err != nil {
			reply = "This plan can no longer be rejected: " + err.Error()
		} else {
			reply = "Plan discarded. Nothing was changed."
		}
	}

	_, _ = tg.Bot.Request(tgbotapi.NewCallback(q.ID, ""))
	// drop the buttons so the plan cannot be decided twice from the same message
	edit := tgbotapi.NewEditMessageReplyMarkup(q.Message.Chat.ID, q.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
	_, _ = tg.Bot.Request(edit)
	_ = tg.Send(chatID, reply)
}

// attachments downloads the photo or document of a message.
func (tg *TelegramGateway) attachments(m *tgbotapi.Message) []vision.Attachment {
	var fileID, name, mediaType string
	switch {
	case len(m.Photo) > 0:
		largest := m.Photo[len(m.Photo)-1]
		fileID, name, mediaType = largest.FileID, "photo.jpg", "image/jpeg"
	case m.Document != nil:
		fileID, name, mediaType = m.Document.FileID, m.Document.FileName, m.Document.MimeType
	default:
		return nil
	}

	data, err := tg.download(fileID)
	if err != nil {
		log.Printf("Error downloading %s: %v", name, err)
		return nil
	}
	return []vision.Attachment{{Name: name, MediaType: mediaType, Data: data}}
}

func (tg *TelegramGateway) download(fileID string) ([]byte, error) {
	url, err := tg.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	resp, err := tg.Files.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

func callbackData(action, planID string) string {
	return action + ":" + planID
}

func parseCallbackData(data string) (action, planID string, ok bool) {
	action, planID, ok = strings.Cut(data, ":")
	if !ok || planID == "" {
		return "", "", false
	}
	if action != actionApprove && action != actionReject {
		return "", "", false
	}
	return action, planID, true
}
