package bus

import (
	"time"

	"github.com/crystaldolphin/outpipe/internal/schema"
)

// OutboundMessage is a generated reply waiting to be post-processed and
// delivered.
type OutboundMessage struct {
	channel    Channel
	chatId     string   // destination conversation id
	content    string   // reply text
	media      []string // image refs appended after the text
	replyTo    string   // id of the inbound message being answered
	senderId   string   // user that triggered the reply
	senderName string
	llm        bool      // produced by a language model
	timestamp  time.Time // when the triggering message arrived
}

// NewOutboundMessage creates a reply job with Timestamp set to now.
func NewOutboundMessage(channel Channel, chatId, content string) OutboundMessage {
	return OutboundMessage{
		channel:   channel,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m OutboundMessage) Channel() Channel     { return m.channel }
func (m OutboundMessage) ChatId() string       { return m.chatId }
func (m OutboundMessage) Content() string      { return m.content }
func (m OutboundMessage) Media() []string      { return m.media }
func (m OutboundMessage) ReplyTo() string      { return m.replyTo }
func (m OutboundMessage) SenderId() string     { return m.senderId }
func (m OutboundMessage) SenderName() string   { return m.senderName }
func (m OutboundMessage) IsLLM() bool          { return m.llm }
func (m OutboundMessage) Timestamp() time.Time { return m.timestamp }

func (m *OutboundMessage) SetMedia(media []string) { m.media = media }
func (m *OutboundMessage) SetReplyTo(id string)    { m.replyTo = id }
func (m *OutboundMessage) SetLLM(llm bool)         { m.llm = llm }
func (m *OutboundMessage) SetSender(id, name string) {
	m.senderId, m.senderName = id, name
}

// SetTimestamp overrides the trigger time; zero values are ignored.
func (m *OutboundMessage) SetTimestamp(ts time.Time) {
	if !ts.IsZero() {
		m.timestamp = ts
	}
}

// RoutingKey returns the key of the conversation state the reply belongs to.
func (m OutboundMessage) RoutingKey() string {
	return RoutingKey(m.channel, m.chatId)
}

// Message builds the segment list the pipeline operates on.
func (m OutboundMessage) Message() *schema.Message {
	msg := schema.NewMessage()
	if m.content != "" {
		msg.Segments = append(msg.Segments, schema.NewText(m.content))
	}
	for _, ref := range m.media {
		if ref != "" {
			msg.Segments = append(msg.Segments, &schema.Image{Ref: ref})
		}
	}
	return msg
}
