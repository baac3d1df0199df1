// Package config defines the configuration schema for outpipe.
//
// Files are YAML (JSON is accepted too); keys are snake_case so that the
// same names work as OUTPIPE_* environment overrides.
package config

import (
	"regexp"
	"slices"
	"strings"

	"github.com/crystaldolphin/outpipe/internal/config/channel"
)

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// MetricsConfig controls the Prometheus endpoint served by the gateway.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// StateConfig caps the per-conversation memory.
type StateConfig struct {
	BotTexts   int `mapstructure:"bot_texts" yaml:"bot_texts"`
	InboundIDs int `mapstructure:"inbound_ids" yaml:"inbound_ids"`
	Nicknames  int `mapstructure:"nicknames" yaml:"nicknames"`
}

// PipelineConfig selects and orders steps.
//
// Entries may carry a label, e.g. "split(分段回复)"; only the part before
// "(" is the step name.
type PipelineConfig struct {
	LockOrder bool     `mapstructure:"lock_order" yaml:"lock_order"`
	Steps     []string `mapstructure:"steps" yaml:"steps"`
	LLMSteps  []string `mapstructure:"llm_steps" yaml:"llm_steps"`
}

func stepName(raw string) string {
	name, _, _ := strings.Cut(raw, "(")
	return strings.TrimSpace(name)
}

func stepNames(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if n := stepName(r); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// StepNames returns the configured step names with labels stripped.
func (p PipelineConfig) StepNames() []string { return stepNames(p.Steps) }

// LLMStepNames returns the generative-only step names with labels stripped.
func (p PipelineConfig) LLMStepNames() []string { return stepNames(p.LLMSteps) }

// IsEnabled reports whether step name is configured.
func (p PipelineConfig) IsEnabled(name string) bool {
	return slices.Contains(p.StepNames(), name)
}

// IsLLMStep reports whether step name only runs for generative replies.
func (p PipelineConfig) IsLLMStep(name string) bool {
	return slices.Contains(p.LLMStepNames(), name)
}

// SummaryConfig sets the outer text of single-image replies.
type SummaryConfig struct {
	Quotes      []string `mapstructure:"quotes" yaml:"quotes"`
	QuotesFiles []string `mapstructure:"quotes_files" yaml:"quotes_files"`
}

// ErrorConfig handles provider error messages leaking into replies.
type ErrorConfig struct {
	Mode      string   `mapstructure:"mode" yaml:"mode"` // ignore, forward, block
	Keywords  []string `mapstructure:"keywords" yaml:"keywords"`
	CustomMsg string   `mapstructure:"custom_msg" yaml:"custom_msg"`
}

const (
	ErrorModeIgnore  = "ignore"
	ErrorModeForward = "forward"
	ErrorModeBlock   = "block"
)

// BlockConfig suppresses stale, repeated or blocklisted replies.
type BlockConfig struct {
	Timeout     int      `mapstructure:"timeout" yaml:"timeout"` // seconds, <=0 disables
	BlockReread bool     `mapstructure:"block_reread" yaml:"block_reread"`
	BlockWords  []string `mapstructure:"block_words" yaml:"block_words"`
}

// AtConfig controls mention resolution.
type AtConfig struct {
	AtStr  bool    `mapstructure:"at_str" yaml:"at_str"` // "@name " text instead of structured mentions
	AtProb float64 `mapstructure:"at_prob" yaml:"at_prob"`
}

// CleanConfig strips noise from short replies.
type CleanConfig struct {
	Think         bool     `mapstructure:"think" yaml:"think"` // drop <think> blocks at any length
	TextThreshold int      `mapstructure:"text_threshold" yaml:"text_threshold"`
	Bracket       bool     `mapstructure:"bracket" yaml:"bracket"`
	Parenthesis   bool     `mapstructure:"parenthesis" yaml:"parenthesis"`
	EmotionTag    bool     `mapstructure:"emotion_tag" yaml:"emotion_tag"`
	Emoji         bool     `mapstructure:"emoji" yaml:"emoji"`
	Lead          []string `mapstructure:"lead" yaml:"lead"`
	Tail          []string `mapstructure:"tail" yaml:"tail"`
	Punctuation   string   `mapstructure:"punctuation" yaml:"punctuation"` // regex
}

// ReplaceConfig lists "old new" replacement pairs.
type ReplaceConfig struct {
	Words          []string `mapstructure:"words" yaml:"words"`
	DefaultNewWord string   `mapstructure:"default_new_word" yaml:"default_new_word"`
}

// TTSConfig converts short replies to voice.
type TTSConfig struct {
	GroupID   string  `mapstructure:"group_id" yaml:"group_id"`
	Character string  `mapstructure:"character" yaml:"character"` // "Name（id）" or a bare id
	Threshold int     `mapstructure:"threshold" yaml:"threshold"`
	Prob      float64 `mapstructure:"prob" yaml:"prob"`
}

// T2IConfig renders long replies to images.
type T2IConfig struct {
	Threshold     int     `mapstructure:"threshold" yaml:"threshold"`
	CacheDir      string  `mapstructure:"cache_dir" yaml:"cache_dir"`
	CleanCache    bool    `mapstructure:"clean_cache" yaml:"clean_cache"`
	CleanSchedule string  `mapstructure:"clean_schedule" yaml:"clean_schedule"` // cron spec, e.g. "@every 6h"
	FontPath      string  `mapstructure:"font_path" yaml:"font_path"`           // TTF/OTF; empty uses Go Regular
	FontSize      float64 `mapstructure:"font_size" yaml:"font_size"`
	Width         int     `mapstructure:"width" yaml:"width"`
	Padding       int     `mapstructure:"padding" yaml:"padding"`
	LineHeight    int     `mapstructure:"line_height" yaml:"line_height"`
	Background    string  `mapstructure:"background" yaml:"background"`
	Foreground    string  `mapstructure:"foreground" yaml:"foreground"`
}

// ReplyConfig quotes the triggering message once it has been buried.
type ReplyConfig struct {
	Threshold int `mapstructure:"threshold" yaml:"threshold"`
}

// ForwardConfig wraps long replies into a grouped forward.
type ForwardConfig struct {
	Threshold int    `mapstructure:"threshold" yaml:"threshold"`
	NodeName  string `mapstructure:"node_name" yaml:"node_name"`
}

// RecallConfig sends-then-deletes sensitive replies.
type RecallConfig struct {
	Keywords     []string `mapstructure:"keywords" yaml:"keywords"`
	RecallImages bool     `mapstructure:"recall_images" yaml:"recall_images"`
	Delay        int      `mapstructure:"delay" yaml:"delay"` // seconds
}

// PunctPause is an extra pause added per occurrence of Mark.
type PunctPause struct {
	Mark  string  `mapstructure:"mark" yaml:"mark"`
	Pause float64 `mapstructure:"pause" yaml:"pause"` // seconds
}

// TypingConfig models human typing cadence. All durations are seconds.
type TypingConfig struct {
	CPS            float64      `mapstructure:"cps" yaml:"cps"`
	Jitter         float64      `mapstructure:"jitter" yaml:"jitter"`
	MinCharDelay   float64      `mapstructure:"min_char_delay" yaml:"min_char_delay"`
	MaxCharDelay   float64      `mapstructure:"max_char_delay" yaml:"max_char_delay"`
	PauseProb      float64      `mapstructure:"pause_prob" yaml:"pause_prob"`
	PauseRange     []float64    `mapstructure:"pause_range" yaml:"pause_range"`
	LongPauseProb  float64      `mapstructure:"long_pause_prob" yaml:"long_pause_prob"`
	LongPauseRange []float64    `mapstructure:"long_pause_range" yaml:"long_pause_range"`
	MaxDelay       float64      `mapstructure:"max_delay" yaml:"max_delay"`
	PunctPause     []PunctPause `mapstructure:"punct_pause" yaml:"punct_pause"`
}

// SplitConfig drives segmentation.
type SplitConfig struct {
	Platforms  []string     `mapstructure:"platforms" yaml:"platforms"`
	CharList   []string     `mapstructure:"char_list" yaml:"char_list"`
	MaxCount   int          `mapstructure:"max_count" yaml:"max_count"`
	QuoteChars string       `mapstructure:"quote_chars" yaml:"quote_chars"`
	Pairs      []string     `mapstructure:"pairs" yaml:"pairs"` // two-rune "open close" strings
	TailPunc   string       `mapstructure:"tail_punc" yaml:"tail_punc"`
	Typing     TypingConfig `mapstructure:"typing" yaml:"typing"`
}

// SplitPattern builds the trigger regex from CharList.
// "\n" means newline, "\s" any whitespace; everything else is literal.
func (s SplitConfig) SplitPattern() string {
	var tokens []string
	for _, ch := range s.CharList {
		switch ch {
		case "":
			continue
		case `\n`, "\n":
			tokens = append(tokens, `\n`)
		case `\s`:
			tokens = append(tokens, `\s`)
		default:
			for _, r := range ch {
				tokens = append(tokens, classLiteral(r))
			}
		}
	}
	if len(tokens) == 0 {
		return ""
	}
	return "^[" + strings.Join(tokens, "") + "]+"
}

// classLiteral escapes r for use inside a bracket expression. QuoteMeta
// leaves '-' alone, which would read as a range.
func classLiteral(r rune) string {
	if r == '-' {
		return `\-`
	}
	return regexp.QuoteMeta(string(r))
}

// PairMap returns opener -> closer for the configured bracket pairs.
func (s SplitConfig) PairMap() map[rune]rune {
	m := make(map[rune]rune, len(s.Pairs))
	for _, p := range s.Pairs {
		r := []rune(strings.TrimSpace(p))
		if len(r) == 2 {
			m[r[0]] = r[1]
		}
	}
	return m
}

// Config is the root configuration.
type Config struct {
	Log      LogConfig              `mapstructure:"log" yaml:"log"`
	Metrics  MetricsConfig          `mapstructure:"metrics" yaml:"metrics"`
	AdminsID []string               `mapstructure:"admins_id" yaml:"admins_id"`
	State    StateConfig            `mapstructure:"state" yaml:"state"`
	Pipeline PipelineConfig         `mapstructure:"pipeline" yaml:"pipeline"`
	Summary  SummaryConfig          `mapstructure:"summary" yaml:"summary"`
	Error    ErrorConfig            `mapstructure:"error" yaml:"error"`
	Block    BlockConfig            `mapstructure:"block" yaml:"block"`
	At       AtConfig               `mapstructure:"at" yaml:"at"`
	Clean    CleanConfig            `mapstructure:"clean" yaml:"clean"`
	Replace  ReplaceConfig          `mapstructure:"replace" yaml:"replace"`
	TTS      TTSConfig              `mapstructure:"tts" yaml:"tts"`
	T2I      T2IConfig              `mapstructure:"t2i" yaml:"t2i"`
	Reply    ReplyConfig            `mapstructure:"reply" yaml:"reply"`
	Forward  ForwardConfig          `mapstructure:"forward" yaml:"forward"`
	Recall   RecallConfig           `mapstructure:"recall" yaml:"recall"`
	Split    SplitConfig            `mapstructure:"split" yaml:"split"`
	Channels channel.ChannelsConfig `mapstructure:"channels" yaml:"channels"`
}

// AdminID returns the first configured admin, or "".
func (c *Config) AdminID() string {
	if len(c.AdminsID) == 0 {
		return ""
	}
	return c.AdminsID[0]
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	return Config{
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Listen: "127.0.0.1:9464"},
		State:   StateConfig{BotTexts: 5, InboundIDs: 10, Nicknames: 100},
		Pipeline: PipelineConfig{
			LockOrder: true,
			Steps: []string{
				"error", "block", "at", "clean", "replace", "reply", "forward", "recall", "split",
			},
			LLMSteps: []string{"at", "clean", "split"},
		},
		Error: ErrorConfig{
			Mode:     ErrorModeBlock,
			Keywords: []string{"请求失败", "错误类型", "Error code", "API Error"},
		},
		Block: BlockConfig{Timeout: 180, BlockReread: true},
		Clean: CleanConfig{
			Think:         true,
			TextThreshold: 150,
			Bracket:       true,
			Parenthesis:   true,
			EmotionTag:    true,
			Emoji:         false,
			Lead:          []string{},
			Tail:          []string{},
		},
		Replace: ReplaceConfig{DefaultNewWord: "*"},
		TTS:     TTSConfig{Threshold: 50, Prob: 0.1},
		T2I: T2IConfig{
			Threshold:  500,
			CacheDir:   "data/image_cache",
			FontSize:   16,
			Width:      640,
			Padding:    24,
			LineHeight: 24,
			Background: "#ffffff",
			Foreground: "#222222",
		},
		Reply:   ReplyConfig{Threshold: 3},
		Forward: ForwardConfig{Threshold: 300},
		Recall:  RecallConfig{Delay: 10},
		Split: SplitConfig{
			Platforms:  []string{"onebot", "telegram", "lark", "console"},
			CharList:   []string{"。", "？", "！", "?", "!", "~", "…", `\n`},
			MaxCount:   5,
			QuoteChars: `"`,
			Pairs:      []string{"（）", "()", "[]", "【】", "「」", "『』", "“”", "‘’", "《》", "{}"},
			TailPunc:   "。，、；,.;",
			Typing:     DefaultTypingConfig(),
		},
		Channels: channel.DefaultChannelsConfig(),
	}
}

// DefaultTypingConfig returns the stock typing cadence.
func DefaultTypingConfig() TypingConfig {
	return TypingConfig{
		CPS:            12,
		Jitter:         0.25,
		MinCharDelay:   0.02,
		MaxCharDelay:   0.20,
		PauseProb:      0.15,
		PauseRange:     []float64{0.3, 0.8},
		LongPauseProb:  0.05,
		LongPauseRange: []float64{1.0, 2.0},
		MaxDelay:       6,
		PunctPause: []PunctPause{
			{Mark: "，", Pause: 0.06},
			{Mark: "。", Pause: 0.18},
			{Mark: "！", Pause: 0.14},
			{Mark: "？", Pause: 0.16},
			{Mark: "…", Pause: 0.22},
			{Mark: "\n", Pause: 0.35},
		},
	}
}
