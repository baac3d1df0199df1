package bus

// Channel names a chat platform adapter.
type Channel string

const (
	ChannelOneBot   Channel = "onebot"
	ChannelTelegram Channel = "telegram"
	ChannelSlack    Channel = "slack"
	ChannelConsole  Channel = "console"
)
