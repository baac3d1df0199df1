package channels

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/config/channel"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// telegramMaxText is kept below the Bot API's 4096 character limit.
const telegramMaxText = 4000

// TelegramChannel implements the Telegram bot via long polling.
type TelegramChannel struct {
	Base
	cfg channel.TelegramConfig

	mu  sync.RWMutex
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(cfg channel.TelegramConfig, b bus.Bus, log zerolog.Logger) *TelegramChannel {
	return &TelegramChannel{
		Base: NewBase(bus.ChannelTelegram, b, cfg.AllowFrom, log),
		cfg:  cfg,
	}
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(t.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	t.mu.Lock()
	t.bot = bot
	t.mu.Unlock()
	t.log.Info().Str("username", bot.Self.UserName).Msg("connected")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (t *TelegramChannel) client() (*tgbotapi.BotAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bot == nil {
		return nil, fmt.Errorf("telegram: bot not running")
	}
	return t.bot, nil
}

func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	if msg.From.UserName != "" {
		senderID = senderID + "|" + msg.From.UserName
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if msg.Chat.IsPrivate() {
		chatID = schema.PrivateConversation(chatID)
	}

	content := msg.Text
	if msg.Caption != "" {
		content = msg.Caption
	}
	if msg.Photo != nil {
		content = strings.TrimSpace(content + " [image]")
	}

	in := bus.NewInboundMessage(bus.ChannelTelegram, senderID, chatID, content)
	in.SetMessageId(strconv.Itoa(msg.MessageID))
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = msg.From.UserName
	}
	in.SetSenderName(name)
	in.SetMetadata(map[string]any{
		"username": msg.From.UserName,
		"is_group": !msg.Chat.IsPrivate(),
	})
	t.HandleMessage(ctx, in)
}

// SendMessage delivers media first, then the text in chunks. The receipt
// names the last message sent.
func (t *TelegramChannel) SendMessage(_ context.Context, conversationID string, msg *schema.Message) (schema.Receipt, error) {
	bot, err := t.client()
	if err != nil {
		return schema.Receipt{}, err
	}
	bare, _ := schema.SplitConversation(conversationID)
	chatID, err := strconv.ParseInt(bare, 10, 64)
	if err != nil {
		return schema.Receipt{}, fmt.Errorf("telegram: invalid chat id %q", conversationID)
	}

	replyTo := 0
	if id := quotedID(msg.Segments); id != "" {
		replyTo, _ = strconv.Atoi(id)
	}

	var last tgbotapi.Message
	for _, seg := range attachments(msg.Segments) {
		var c tgbotapi.Chattable
		switch v := seg.(type) {
		case *schema.Image:
			p := tgbotapi.NewPhoto(chatID, telegramFile(v.Ref))
			p.Caption = v.Summary
			p.ReplyToMessageID = replyTo
			c = p
		case *schema.Audio:
			a := tgbotapi.NewVoice(chatID, telegramFile(v.Ref))
			a.ReplyToMessageID = replyTo
			c = a
		default:
			continue
		}
		if last, err = bot.Send(c); err != nil {
			return schema.Receipt{}, fmt.Errorf("telegram: send media: %w", err)
		}
	}

	text := stripZeroWidth(flattenText(msg.Segments, func(id string) string { return "@" + id }))
	if strings.TrimSpace(text) != "" {
		for _, chunk := range splitMessage(text, telegramMaxText) {
			m := tgbotapi.NewMessage(chatID, chunk)
			m.ReplyToMessageID = replyTo
			if last, err = bot.Send(m); err != nil {
				return schema.Receipt{}, fmt.Errorf("telegram: send text: %w", err)
			}
		}
	}

	return schema.Receipt{
		Platform:       t.Name(),
		ConversationID: conversationID,
		MessageID:      strconv.Itoa(last.MessageID),
	}, nil
}

// DeleteMessage removes a message sent by the bot.
func (t *TelegramChannel) DeleteMessage(_ context.Context, r schema.Receipt) error {
	bot, err := t.client()
	if err != nil {
		return err
	}
	bare, _ := schema.SplitConversation(r.ConversationID)
	chatID, err := strconv.ParseInt(bare, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q", r.ConversationID)
	}
	msgID, err := strconv.Atoi(r.MessageID)
	if err != nil {
		return fmt.Errorf("telegram: invalid message id %q", r.MessageID)
	}
	if _, err := bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		return fmt.Errorf("telegram: delete: %w", err)
	}
	return nil
}

// SelfName returns the bot's display name.
func (t *TelegramChannel) SelfName(_ context.Context) (string, error) {
	bot, err := t.client()
	if err != nil {
		return "", err
	}
	if bot.Self.FirstName != "" {
		return bot.Self.FirstName, nil
	}
	return bot.Self.UserName, nil
}

// SelfID returns the bot's user id once connected.
func (t *TelegramChannel) SelfID() string {
	bot, err := t.client()
	if err != nil {
		return ""
	}
	return strconv.FormatInt(bot.Self.ID, 10)
}

func telegramFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FilePath(ref)
}
