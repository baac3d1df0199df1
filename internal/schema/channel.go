package schema

import (
	"context"
	"strings"
)

// Receipt identifies a delivered message so it can be deleted later.
type Receipt struct {
	Platform       string
	ConversationID string
	MessageID      string
}

// Sender delivers a message to a conversation.
type Sender interface {
	SendMessage(ctx context.Context, conversationID string, msg *Message) (Receipt, error)
}

// Deleter recalls a previously delivered message.
type Deleter interface {
	DeleteMessage(ctx context.Context, r Receipt) error
}

// Channel is the interface every chat-platform adapter must implement.
type Channel interface {
	// Name returns the platform identifier (e.g. "onebot").
	Name() string
	// Start begins listening for inbound messages; it blocks until ctx is cancelled.
	Start(ctx context.Context) error
	Sender
	Deleter
}

// Identity resolves the bot's own display name.
type Identity interface {
	SelfName(ctx context.Context) (string, error)
}

// VoiceProfile selects the synthesized voice.
type VoiceProfile struct {
	Character string
	GroupID   string
}

// SpeechSynthesizer turns text into a voice clip reference.
type SpeechSynthesizer interface {
	TextToSpeech(ctx context.Context, text string, voice VoiceProfile) (string, error)
}

// RenderStyle controls text-to-image output.
type RenderStyle struct {
	Width      int
	Padding    int
	LineHeight int
	Background string // hex, e.g. "#ffffff"
	Foreground string
}

// ImageRenderer turns text into an image reference.
type ImageRenderer interface {
	RenderTextToImage(ctx context.Context, text string, style RenderStyle) (string, error)
}

// ForwardCapable is implemented by channels that can deliver ForwardGroup segments.
type ForwardCapable interface {
	SupportsForward() bool
}

const privatePrefix = "private:"

// PrivateConversation returns the conversation id of a direct chat with userID.
func PrivateConversation(userID string) string {
	return privatePrefix + userID
}

// SplitConversation reports whether id names a direct chat and returns the bare id.
func SplitConversation(id string) (bare string, private bool) {
	if rest, ok := strings.CutPrefix(id, privatePrefix); ok {
		return rest, true
	}
	return id, false
}
