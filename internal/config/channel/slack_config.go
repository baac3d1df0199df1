package channel

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	BotToken  string   `mapstructure:"bot_token" yaml:"bot_token"`
	AppToken  string   `mapstructure:"app_token" yaml:"app_token"`
	AllowFrom []string `mapstructure:"allow_from" yaml:"allow_from"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{AllowFrom: []string{}}
}
