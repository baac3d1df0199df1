package channel

type ChannelsConfig struct {
	OneBot   OneBotConfig   `mapstructure:"onebot" yaml:"onebot"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack" yaml:"slack"`
}

func DefaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		OneBot:   DefaultOneBotConfig(),
		Telegram: DefaultTelegramConfig(),
		Slack:    DefaultSlackConfig(),
	}
}
