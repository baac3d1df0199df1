// Package bus defines the events that flow between channels and the host.
package bus

import (
	"time"

	"github.com/crystaldolphin/outpipe/internal/shared/stringutils"
)

// InboundMessage is a message a user sent in a conversation the bot is in.
// The host only observes it: ids feed smart quoting, names feed mention
// resolution.
type InboundMessage struct {
	channel    Channel
	senderId   string
	senderName string         // display name or group card
	chatId     string         // conversation id (group id or private:<user>)
	messageId  string         // platform message id, may be empty
	content    string         // plain text rendering
	timestamp  time.Time      // when the message was received
	metadata   map[string]any // channel-specific extra data
}

// NewInboundMessage creates an InboundMessage with Timestamp set to now.
// Use the setters to attach optional fields.
func NewInboundMessage(channel Channel, senderId, chatId, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderId:  senderId,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) Channel() Channel               { return m.channel }
func (m InboundMessage) SenderId() string               { return m.senderId }
func (m InboundMessage) SenderName() string             { return m.senderName }
func (m InboundMessage) ChatId() string                 { return m.chatId }
func (m InboundMessage) MessageId() string              { return m.messageId }
func (m InboundMessage) Content() string                { return m.content }
func (m InboundMessage) Timestamp() time.Time           { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *InboundMessage) SetSenderName(name string)     { m.senderName = name }
func (m *InboundMessage) SetMessageId(id string)        { m.messageId = id }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// RoutingKey returns the key of the conversation state this message belongs to.
func (m InboundMessage) RoutingKey() string {
	return RoutingKey(m.channel, m.chatId)
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	return stringutils.Truncate(m.content, 80)
}
