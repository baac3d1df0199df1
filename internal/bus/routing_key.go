package bus

import "strings"

// RoutingKey scopes a conversation id to its channel, e.g. "onebot:123456".
// Conversation state is keyed by it, so equal chat ids on different
// platforms never share history.
func RoutingKey(channel Channel, chatId string) string {
	if chatId == "" {
		return string(channel)
	}
	return string(channel) + ":" + chatId
}

// ParseRoutingKey reverses RoutingKey. The chat id keeps any further colons,
// as in "onebot:private:42".
func ParseRoutingKey(key string) (Channel, string) {
	channel, chatId, _ := strings.Cut(key, ":")
	return Channel(channel), chatId
}
