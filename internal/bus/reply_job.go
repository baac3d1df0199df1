package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ReplyJob is the JSON form of an OutboundMessage, one object per line.
//
//	{"channel":"onebot","chat_id":"123456","content":"你好。在吗？","reply_to":"42","llm":true}
type ReplyJob struct {
	Channel    string   `json:"channel"`
	ChatID     string   `json:"chat_id"`
	Content    string   `json:"content"`
	Media      []string `json:"media,omitempty"`
	ReplyTo    string   `json:"reply_to,omitempty"`
	SenderID   string   `json:"sender_id,omitempty"`
	SenderName string   `json:"sender_name,omitempty"`
	LLM        *bool    `json:"llm,omitempty"`       // default true
	Timestamp  int64    `json:"timestamp,omitempty"` // unix seconds of the triggering message
}

// Outbound validates j and converts it.
func (j ReplyJob) Outbound() (OutboundMessage, error) {
	if j.Channel == "" || j.ChatID == "" {
		return OutboundMessage{}, errors.New("reply job needs channel and chat_id")
	}
	msg := NewOutboundMessage(Channel(j.Channel), j.ChatID, j.Content)
	msg.SetMedia(j.Media)
	msg.SetReplyTo(j.ReplyTo)
	msg.SetSender(j.SenderID, j.SenderName)
	msg.SetLLM(j.LLM == nil || *j.LLM)
	if j.Timestamp > 0 {
		msg.SetTimestamp(time.Unix(j.Timestamp, 0))
	}
	return msg, nil
}

// ReadReplyJobs publishes one reply job per non-blank line of r until r ends
// or ctx is done. Bad lines are passed to onError and skipped.
func ReadReplyJobs(ctx context.Context, r io.Reader, b Bus, onError func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var job ReplyJob
		if err := json.Unmarshal([]byte(line), &job); err != nil {
			onError(n, fmt.Errorf("decode: %w", err))
			continue
		}
		msg, err := job.Outbound()
		if err != nil {
			onError(n, err)
			continue
		}
		if err := b.PublishOutbound(ctx, msg); err != nil {
			return err
		}
	}
	return scanner.Err()
}
