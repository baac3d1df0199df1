package channel

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Token     string   `mapstructure:"token" yaml:"token"`
	AllowFrom []string `mapstructure:"allow_from" yaml:"allow_from"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{AllowFrom: []string{}}
}
