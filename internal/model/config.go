package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Mail providers supported by the gateway layer.
const (
	ProviderGmail = "gmail"
	ProviderIMAP  = "imap"
)

// DefaultReplyBody is the canned reply sent when no body is configured.
const DefaultReplyBody = "お問い合わせありがとうございます。\n" +
	"資料をお送りいたします。\n" +
	"ご確認のほどよろしくお願いいたします。"

// LoopConfig controls the polling loop.
type LoopConfig struct {
	// Enabled starts the loop as soon as the dashboard opens.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// IntervalMinutes is the delay between the end of one cycle and the
	// start of the next.
	IntervalMinutes int `mapstructure:"interval_minutes" yaml:"interval_minutes" validate:"min=1,max=60"`

	// MaxEmails bounds how many unread messages one cycle handles.
	MaxEmails int `mapstructure:"max_emails" yaml:"max_emails" validate:"min=1,max=20"`

	// SpamFilter skips automated senders when true.
	SpamFilter bool `mapstructure:"spam_filter" yaml:"spam_filter"`
}

// ReplyConfig is the operator-provided reply template.
type ReplyConfig struct {
	Subject        string `mapstructure:"subject" yaml:"subject"`
	Body           string `mapstructure:"body" yaml:"body"`
	Attach         bool   `mapstructure:"attach" yaml:"attach"`
	AttachmentPath string `mapstructure:"attachment_path" yaml:"attachment_path" validate:"required_if=Attach true"`
}

// GmailConfig holds settings for the Gmail API gateway.
type GmailConfig struct {
	TokenFile         string  `mapstructure:"token_file" yaml:"token_file"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
}

// IMAPConfig holds settings for the IMAP/SMTP gateway. The password is
// a credential and never lives in the config file.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// MailConfig selects and configures the mailbox provider.
type MailConfig struct {
	Provider string      `mapstructure:"provider" yaml:"provider" validate:"oneof=gmail imap"`
	Gmail    GmailConfig `mapstructure:"gmail" yaml:"gmail"`
	IMAP     IMAPConfig  `mapstructure:"imap" yaml:"imap"`
}

// SummarizerConfig holds settings for the hosted chat-completion client.
type SummarizerConfig struct {
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint" validate:"url"`
	Model             string  `mapstructure:"model" yaml:"model" validate:"required"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	Language          string  `mapstructure:"language" yaml:"language"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
}

// NotifierConfig holds settings for the LINE push notifier.
type NotifierConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" validate:"url"`
	UserID   string `mapstructure:"user_id" yaml:"user_id"`
}

// StoreConfig locates the activity archive.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn" yaml:"dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Loop       LoopConfig       `mapstructure:"loop" yaml:"loop"`
	Reply      ReplyConfig      `mapstructure:"reply" yaml:"reply"`
	Mail       MailConfig       `mapstructure:"mail" yaml:"mail"`
	Summarizer SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`
	Notifier   NotifierConfig   `mapstructure:"notifier" yaml:"notifier"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry" yaml:"sentry"`
}

var validate = validator.New()

// ConfigDir returns ~/.config/autoreply, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "autoreply")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Loop: LoopConfig{
			IntervalMinutes: 30,
			MaxEmails:       10,
		},
		Reply: ReplyConfig{
			Body: DefaultReplyBody,
		},
		Mail: MailConfig{
			Provider: ProviderGmail,
			Gmail: GmailConfig{
				TokenFile:         "token.json",
				RequestsPerSecond: 5,
			},
			IMAP: IMAPConfig{
				Port:     "993",
				SMTPPort: "465",
				TLS:      true,
			},
		},
		Summarizer: SummarizerConfig{
			Endpoint:          "https://api.groq.com/openai/v1/chat/completions",
			Model:             "llama-3.3-70b-versatile",
			Temperature:       0.5,
			MaxTokens:         300,
			Language:          "Japanese",
			RequestsPerSecond: 1,
		},
		Notifier: NotifierConfig{
			Endpoint: "https://api.line.me/v2/bot/message/push",
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "autoreply.db"),
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "autoreply.log"),
		},
	}
}

// setDefaults mirrors DefaultAppConfig into v so missing keys resolve.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("loop.enabled", d.Loop.Enabled)
	v.SetDefault("loop.interval_minutes", d.Loop.IntervalMinutes)
	v.SetDefault("loop.max_emails", d.Loop.MaxEmails)
	v.SetDefault("loop.spam_filter", d.Loop.SpamFilter)
	v.SetDefault("reply.body", d.Reply.Body)
	v.SetDefault("mail.provider", d.Mail.Provider)
	v.SetDefault("mail.gmail.token_file", d.Mail.Gmail.TokenFile)
	v.SetDefault("mail.gmail.requests_per_second", d.Mail.Gmail.RequestsPerSecond)
	v.SetDefault("mail.imap.port", d.Mail.IMAP.Port)
	v.SetDefault("mail.imap.smtp_port", d.Mail.IMAP.SMTPPort)
	v.SetDefault("mail.imap.tls", d.Mail.IMAP.TLS)
	v.SetDefault("summarizer.endpoint", d.Summarizer.Endpoint)
	v.SetDefault("summarizer.model", d.Summarizer.Model)
	v.SetDefault("summarizer.temperature", d.Summarizer.Temperature)
	v.SetDefault("summarizer.max_tokens", d.Summarizer.MaxTokens)
	v.SetDefault("summarizer.language", d.Summarizer.Language)
	v.SetDefault("summarizer.requests_per_second", d.Summarizer.RequestsPerSecond)
	v.SetDefault("notifier.endpoint", d.Notifier.Endpoint)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return DefaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return decode(v, path)
}

func decode(v *viper.Viper, path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and returns a single error listing every
// violation.
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Namespace())
		field = strings.TrimPrefix(field, "appconfig.")
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, field+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, field+" must be at most "+fe.Param())
		case "oneof":
			msgs = append(msgs, field+" must be one of: "+fe.Param())
		case "required", "required_if":
			msgs = append(msgs, field+" is required")
		case "url":
			msgs = append(msgs, field+" must be a URL")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("loop", cfg.Loop)
	v.Set("reply", cfg.Reply)
	v.Set("mail", cfg.Mail)
	v.Set("summarizer", cfg.Summarizer)
	v.Set("notifier", cfg.Notifier)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)
	v.Set("sentry", cfg.Sentry)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// WatchConfig re-reads path whenever it changes on disk and calls onChange
// with the new configuration, or onError when the edited file does not
// parse or validate. It returns immediately; the watch lasts for the life
// of the process.
func WatchConfig(
	path string,
	onChange func(*AppConfig),
	onError func(error),
) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v, path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()

	return nil
}
