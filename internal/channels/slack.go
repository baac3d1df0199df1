package channels

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	slackgo "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/config/channel"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

var reSlackMention = regexp.MustCompile(`<@[A-Z0-9]+>\s*`)

// SlackChannel implements Slack via Socket Mode.
type SlackChannel struct {
	Base
	cfg channel.SlackConfig

	mu        sync.RWMutex
	webClient *slackgo.Client
	botUserID string
	botName   string
	names     map[string]string // user id -> display name
}

func NewSlackChannel(cfg channel.SlackConfig, b bus.Bus, log zerolog.Logger) *SlackChannel {
	return &SlackChannel{
		Base:  NewBase(bus.ChannelSlack, b, cfg.AllowFrom, log),
		cfg:   cfg,
		names: make(map[string]string),
	}
}

func (s *SlackChannel) Start(ctx context.Context) error {
	if s.cfg.BotToken == "" || s.cfg.AppToken == "" {
		return fmt.Errorf("slack: bot/app token not configured")
	}

	web := slackgo.New(s.cfg.BotToken, slackgo.OptionAppLevelToken(s.cfg.AppToken))
	auth, err := web.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	s.mu.Lock()
	s.webClient = web
	s.botUserID, s.botName = auth.UserID, auth.User
	s.mu.Unlock()
	s.log.Info().Str("bot_user_id", auth.UserID).Msg("connected")

	sm := socketmode.New(web)
	go func() {
		if err := sm.RunContext(ctx); err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("socket mode stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sm.Events:
			if !ok {
				return nil
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				sm.Ack(*evt.Request)
			}
			if cb, ok := evt.Data.(slackevents.EventsAPIEvent); ok {
				s.handleInnerEvent(ctx, cb.InnerEvent)
			}
		}
	}
}

func (s *SlackChannel) client() (*slackgo.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.webClient == nil {
		return nil, fmt.Errorf("slack: not connected")
	}
	return s.webClient, nil
}

func (s *SlackChannel) handleInnerEvent(ctx context.Context, ev slackevents.EventsAPIInnerEvent) {
	var user, chat, text, ts, channelType string
	switch e := ev.Data.(type) {
	case *slackevents.MessageEvent:
		if e.SubType != "" || e.BotID != "" {
			return
		}
		user, chat, text, ts, channelType = e.User, e.Channel, e.Text, e.TimeStamp, e.ChannelType
	case *slackevents.AppMentionEvent:
		if e.BotID != "" {
			return
		}
		user, chat, text, ts = e.User, e.Channel, e.Text, e.TimeStamp
	default:
		return
	}
	if user == "" || chat == "" || user == s.SelfID() {
		return
	}
	// A mention also arrives as a plain message event; keep only one.
	if _, isMsg := ev.Data.(*slackevents.MessageEvent); isMsg && s.SelfID() != "" && strings.Contains(text, "<@"+s.SelfID()+">") {
		return
	}

	if channelType == "im" {
		chat = schema.PrivateConversation(chat)
	}
	in := bus.NewInboundMessage(bus.ChannelSlack, user, chat, strings.TrimSpace(reSlackMention.ReplaceAllString(text, "")))
	in.SetMessageId(ts)
	in.SetSenderName(s.userName(ctx, user))
	s.HandleMessage(ctx, in)
}

// userName resolves a display name, caching successful lookups.
func (s *SlackChannel) userName(ctx context.Context, userID string) string {
	s.mu.RLock()
	name, ok := s.names[userID]
	s.mu.RUnlock()
	if ok {
		return name
	}
	web, err := s.client()
	if err != nil {
		return ""
	}
	u, err := web.GetUserInfoContext(ctx, userID)
	if err != nil {
		s.log.Debug().Err(err).Str("user", userID).Msg("user lookup failed")
		return ""
	}
	name = u.Profile.DisplayName
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.Name
	}
	s.mu.Lock()
	s.names[userID] = name
	s.mu.Unlock()
	return name
}

// SendMessage posts msg as one Slack message. Image and voice refs are
// appended as links; a quote becomes a thread reply.
func (s *SlackChannel) SendMessage(ctx context.Context, conversationID string, msg *schema.Message) (schema.Receipt, error) {
	web, err := s.client()
	if err != nil {
		return schema.Receipt{}, err
	}
	bare, _ := schema.SplitConversation(conversationID)

	text := flattenText(msg.Segments, func(id string) string { return "<@" + id + ">" })
	var refs []string
	for _, seg := range attachments(msg.Segments) {
		switch v := seg.(type) {
		case *schema.Image:
			refs = append(refs, v.Ref)
		case *schema.Audio:
			refs = append(refs, v.Ref)
		}
	}
	if len(refs) > 0 {
		text = strings.TrimSpace(text + "\n" + strings.Join(refs, "\n"))
	}
	if text == "" {
		return schema.Receipt{}, fmt.Errorf("slack: nothing to send")
	}

	opts := []slackgo.MsgOption{slackgo.MsgOptionText(text, false)}
	if ts := quotedID(msg.Segments); ts != "" {
		opts = append(opts, slackgo.MsgOptionTS(ts))
	}
	chat, ts, err := web.PostMessageContext(ctx, bare, opts...)
	if err != nil {
		return schema.Receipt{}, fmt.Errorf("slack: post: %w", err)
	}
	// Posting to a user id opens a DM; the returned channel is what delete needs.
	return schema.Receipt{Platform: s.Name(), ConversationID: chat, MessageID: ts}, nil
}

// DeleteMessage removes a message posted by the bot.
func (s *SlackChannel) DeleteMessage(ctx context.Context, r schema.Receipt) error {
	web, err := s.client()
	if err != nil {
		return err
	}
	bare, _ := schema.SplitConversation(r.ConversationID)
	if _, _, err := web.DeleteMessageContext(ctx, bare, r.MessageID); err != nil {
		return fmt.Errorf("slack: delete: %w", err)
	}
	return nil
}

// SelfName returns the bot user's name from auth.test.
func (s *SlackChannel) SelfName(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.botName == "" {
		return "", fmt.Errorf("slack: not connected")
	}
	return s.botName, nil
}

// SelfID returns the bot user id.
func (s *SlackChannel) SelfID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botUserID
}
