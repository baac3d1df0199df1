package channel

// OneBotConfig configures the OneBot v11 (forward WebSocket) channel.
type OneBotConfig struct {
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
	WSURL             string   `mapstructure:"ws_url" yaml:"ws_url"`
	AccessToken       string   `mapstructure:"access_token" yaml:"access_token"`
	ReconnectInterval int      `mapstructure:"reconnect_interval" yaml:"reconnect_interval"` // seconds, 0 disables
	RequestTimeout    int      `mapstructure:"request_timeout" yaml:"request_timeout"`       // seconds
	AllowFrom         []string `mapstructure:"allow_from" yaml:"allow_from"`
}

func DefaultOneBotConfig() OneBotConfig {
	return OneBotConfig{
		WSURL:             "ws://127.0.0.1:3001",
		ReconnectInterval: 5,
		RequestTimeout:    10,
		AllowFrom:         []string{},
	}
}
