package pipeline

import (
	"time"

	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/state"
)

// Context carries one outbound reply through a run. It is owned by that run.
type Context struct {
	RunID            string
	Platform         string
	ConversationID   string
	SenderID         string
	SenderName       string
	SelfID           string
	InboundMessageID string
	IsLLM            bool
	Plain            string    // plain text as handed to the pipeline; error and block judge this
	Timestamp        time.Time // when the inbound message arrived

	Message *schema.Message
	State   *state.Conversation
	Channel schema.Channel
}

// Private reports whether the run targets a direct chat.
func (pc *Context) Private() bool {
	_, private := schema.SplitConversation(pc.ConversationID)
	return private
}
