// Package channels provides chat-platform channel implementations.
package channels

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
)

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.Channel
	b           bus.Bus
	allowFrom   []string // empty = allow all
	log         zerolog.Logger
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.Channel, b bus.Bus, allowFrom []string, log zerolog.Logger) Base {
	return Base{
		channelName: name,
		b:           b,
		allowFrom:   allowFrom,
		log:         log.With().Str("component", "channel").Str("channel", string(name)).Logger(),
	}
}

func (b *Base) Name() string { return string(b.channelName) }

// IsAllowed reports whether senderID may reach the bus. An empty allowlist
// admits everyone. Telegram ids come as "id|username"; either part matches.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 || slices.Contains(b.allowFrom, senderID) {
		return true
	}
	for part := range strings.SplitSeq(senderID, "|") {
		if part != "" && slices.Contains(b.allowFrom, part) {
			return true
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then pushes msg to the bus.
func (b *Base) HandleMessage(ctx context.Context, msg bus.InboundMessage) {
	if !b.IsAllowed(msg.SenderId()) {
		b.log.Debug().Str("sender", msg.SenderId()).Msg("sender not in allow_from")
		return
	}
	if err := b.b.PublishInbound(ctx, msg); err != nil {
		b.log.Warn().Err(err).Str("chat", msg.ChatId()).Msg("drop inbound message")
	}
}

// splitMessage splits content into chunks that fit within maxLen,
// preferring newline breaks, then space breaks, then hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
			// Never cut through a multi-byte rune.
			for pos > 0 && !utf8.RuneStart(content[pos]) {
				pos--
			}
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t\n")
	}
	return chunks
}
